package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/hydraql/internal/catalog"
	"github.com/Sumatoshi-tech/hydraql/internal/lang"
)

const (
	configName      = ".hydraql"
	configType      = "yaml"
	envPrefix       = "HYDRAQL"
	envKeySeparator = "_"
)

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"languages":          "languages",
	"db-root":            "databases.root",
	"auto-init-db":       "databases.auto_create",
	"source-root":        "databases.source_root",
	"auto-finalize-db":   "databases.auto_finalize",
	"allow-missing-db":   "databases.allow_missing",
	"force-unready-db":   "databases.force_unready",
	"query-dir":          "queries.dirs",
	"suite-only":         "queries.suite_only",
	"codeql":             "analyzer.binary",
	"timeout":            "analyzer.timeout",
	"pack-install":       "analyzer.pack_install",
	"workers":            "scan.workers",
	"retry-delay":        "scan.retry_delay",
	"dry-run":            "scan.dry_run",
	"failure-log":        "scan.failure_log",
	"unlock-cache":       "locks.unlock",
	"check-lock-process": "locks.check_process",
	"kill-lock-process":  "locks.kill_process",
	"format":             "report.format",
	"severity":           "report.severity",
	"strict-severity":    "report.strict",
	"output-dir":         "report.dir",
	"keep-raw":           "report.keep_raw",
	"verbose":            "output.verbose",
	"quiet":              "output.quiet",
	"fancy":              "output.fancy",
	"log-json":           "output.log_json",
	"otlp-endpoint":      "observability.otlp_endpoint",
	"otlp-headers":       "observability.otlp_headers",
	"otlp-insecure":      "observability.otlp_insecure",
	"diagnostics-addr":   "observability.diagnostics_addr",
}

// LoadConfig loads configuration from defaults, file, environment and flags,
// in increasing precedence. If configPath is empty the file is searched in
// CWD and $HOME; a missing file is not an error. flags may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	viperCfg := viper.New()

	for key, value := range defaults() {
		viperCfg.SetDefault(key, value)
	}

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	bindErr := bindFlags(viperCfg, flags)
	if bindErr != nil {
		return nil, bindErr
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	cfg.normalize()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// bindFlags binds only the flags the user set, so flag defaults never mask
// file or environment values.
func bindFlags(viperCfg *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	var bindErr error

	flags.Visit(func(flag *pflag.Flag) {
		key, ok := FlagKeys[flag.Name]
		if !ok || bindErr != nil {
			return
		}

		err := viperCfg.BindPFlag(key, flag)
		if err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", flag.Name, err)
		}
	})

	return bindErr
}

func (c *Config) normalize() {
	c.Languages = lang.ParseList(strings.Join(c.Languages, ","))
	c.Queries.Dirs = catalog.NormalizeDirs(c.Queries.Dirs)
	c.Report.Format = strings.ToLower(strings.TrimSpace(c.Report.Format))
	c.Report.Severity = strings.TrimSpace(c.Report.Severity)
}
