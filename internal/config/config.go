// Package config loads and validates hydraql settings.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/hydraql/internal/lang"
	"github.com/Sumatoshi-tech/hydraql/internal/lockfile"
	"github.com/Sumatoshi-tech/hydraql/internal/report"
)

// Sentinel validation errors.
var (
	// ErrNoLanguages indicates the language list is empty after normalization.
	ErrNoLanguages = errors.New("languages must name at least one language")
	// ErrUnknownLanguage indicates a language the analyzer does not support.
	ErrUnknownLanguage = errors.New("unknown language")
	// ErrInvalidWorkers indicates a worker count below one.
	ErrInvalidWorkers = errors.New("scan.workers must be at least 1")
	// ErrInvalidFormat indicates an unsupported report format.
	ErrInvalidFormat = errors.New("report.format is not supported")
	// ErrNegativeRetryDelay indicates a negative retry delay.
	ErrNegativeRetryDelay = errors.New("scan.retry_delay must be non-negative")
	// ErrNegativeTimeout indicates a negative analyzer timeout.
	ErrNegativeTimeout = errors.New("analyzer.timeout must be non-negative")
	// ErrSourceRootRequired indicates auto_create without a source root.
	ErrSourceRootRequired = errors.New("databases.auto_create requires databases.source_root")
	// ErrKillInDryRun indicates kill_process combined with dry_run.
	ErrKillInDryRun = errors.New("locks.kill_process cannot be combined with scan.dry_run")
	// ErrVerboseQuiet indicates both verbose and quiet output were requested.
	ErrVerboseQuiet = errors.New("output.verbose and output.quiet are mutually exclusive")
	// ErrInvalidSampleRatio indicates a trace sample ratio outside [0, 1].
	ErrInvalidSampleRatio = errors.New("observability.sample_ratio must be between 0 and 1")
)

// Config is the top-level hydraql configuration.
type Config struct {
	Languages     []string            `mapstructure:"languages"`
	Databases     DatabasesConfig     `mapstructure:"databases"`
	Queries       QueriesConfig       `mapstructure:"queries"`
	Analyzer      AnalyzerConfig      `mapstructure:"analyzer"`
	Scan          ScanConfig          `mapstructure:"scan"`
	Locks         LocksConfig         `mapstructure:"locks"`
	Report        ReportConfig        `mapstructure:"report"`
	Output        OutputConfig        `mapstructure:"output"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// DatabasesConfig controls database resolution.
type DatabasesConfig struct {
	Root         string `mapstructure:"root"`
	AutoCreate   bool   `mapstructure:"auto_create"`
	SourceRoot   string `mapstructure:"source_root"`
	AutoFinalize bool   `mapstructure:"auto_finalize"`
	AllowMissing bool   `mapstructure:"allow_missing"`
	ForceUnready bool   `mapstructure:"force_unready"`
}

// QueriesConfig controls query discovery.
type QueriesConfig struct {
	Dirs      []string `mapstructure:"dirs"`
	SuiteOnly bool     `mapstructure:"suite_only"`
}

// AnalyzerConfig controls the external analyzer.
type AnalyzerConfig struct {
	Binary      string        `mapstructure:"binary"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PackInstall bool          `mapstructure:"pack_install"`
}

// ScanConfig controls the worker pool.
type ScanConfig struct {
	Workers    int           `mapstructure:"workers"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	DryRun     bool          `mapstructure:"dry_run"`
	FailureLog string        `mapstructure:"failure_log"`
}

// LocksConfig selects the lock sweep policy.
type LocksConfig struct {
	Unlock       bool `mapstructure:"unlock"`
	CheckProcess bool `mapstructure:"check_process"`
	KillProcess  bool `mapstructure:"kill_process"`
}

// ReportConfig controls the merged report.
type ReportConfig struct {
	Format   string `mapstructure:"format"`
	Severity string `mapstructure:"severity"`
	Strict   bool   `mapstructure:"strict"`
	Dir      string `mapstructure:"dir"`
	KeepRaw  bool   `mapstructure:"keep_raw"`
}

// OutputConfig controls terminal output.
type OutputConfig struct {
	Verbose bool `mapstructure:"verbose"`
	Quiet   bool `mapstructure:"quiet"`
	Fancy   bool `mapstructure:"fancy"`
	LogJSON bool `mapstructure:"log_json"`
}

// ObservabilityConfig controls telemetry export.
type ObservabilityConfig struct {
	Environment     string  `mapstructure:"environment"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders     string  `mapstructure:"otlp_headers"`
	OTLPInsecure    bool    `mapstructure:"otlp_insecure"`
	SampleRatio     float64 `mapstructure:"sample_ratio"`
	DiagnosticsAddr string  `mapstructure:"diagnostics_addr"`
}

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if len(c.Languages) == 0 {
		return ErrNoLanguages
	}

	for _, name := range c.Languages {
		if !lang.IsKnown(name) {
			return fmt.Errorf("%w: %s", ErrUnknownLanguage, name)
		}
	}

	if c.Scan.Workers < 1 {
		return ErrInvalidWorkers
	}

	_, formatErr := report.ParseFormat(c.Report.Format)
	if formatErr != nil {
		return fmt.Errorf("%w: %s", ErrInvalidFormat, c.Report.Format)
	}

	if c.Scan.RetryDelay < 0 {
		return ErrNegativeRetryDelay
	}

	if c.Analyzer.Timeout < 0 {
		return ErrNegativeTimeout
	}

	if c.Databases.AutoCreate && c.Databases.SourceRoot == "" {
		return ErrSourceRootRequired
	}

	if c.Locks.KillProcess && c.Scan.DryRun {
		return ErrKillInDryRun
	}

	if c.Output.Verbose && c.Output.Quiet {
		return ErrVerboseQuiet
	}

	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}

	return nil
}

// ReportFormat returns the parsed report format. Call after Validate.
func (c *Config) ReportFormat() report.Format {
	format, err := report.ParseFormat(c.Report.Format)
	if err != nil {
		return report.FormatCSV
	}

	return format
}

// LockPolicy returns the sweep policy selected by the locks section.
func (c *Config) LockPolicy() lockfile.Policy {
	return lockfile.Policy{
		Clear:      c.Locks.Unlock,
		CheckOwner: c.Locks.CheckProcess,
		KillOwner:  c.Locks.KillProcess,
	}
}

// LogLevel maps the output flags to a slog level.
func (c *Config) LogLevel() slog.Level {
	switch {
	case c.Output.Verbose:
		return slog.LevelDebug
	case c.Output.Quiet:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
