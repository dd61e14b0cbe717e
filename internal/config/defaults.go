package config

import "time"

// Default configuration values.
const (
	DefaultDatabaseRoot = "cqlDB"
	DefaultQueryDir     = "~/Git/codeql"
	DefaultAnalyzer     = "codeql"
	DefaultWorkers      = 6
	DefaultRetryDelay   = 250 * time.Millisecond
	DefaultFailureLog   = "hydraql_failures.log"
	DefaultFormat       = "csv"
	DefaultSampleRatio  = 1.0
	DefaultEnvironment  = "local"
)

// DefaultLanguages is the language list scanned when none is configured.
var DefaultLanguages = []string{"java", "javascript", "typescript", "python"}

func defaults() map[string]any {
	return map[string]any{
		"languages": DefaultLanguages,

		"databases.root":          DefaultDatabaseRoot,
		"databases.auto_create":   false,
		"databases.source_root":   "",
		"databases.auto_finalize": false,
		"databases.allow_missing": false,
		"databases.force_unready": false,

		"queries.dirs":       []string{DefaultQueryDir},
		"queries.suite_only": false,

		"analyzer.binary":       DefaultAnalyzer,
		"analyzer.timeout":      time.Duration(0),
		"analyzer.pack_install": false,

		"scan.workers":     DefaultWorkers,
		"scan.retry_delay": DefaultRetryDelay,
		"scan.dry_run":     false,
		"scan.failure_log": DefaultFailureLog,

		"locks.unlock":        false,
		"locks.check_process": false,
		"locks.kill_process":  false,

		"report.format":   DefaultFormat,
		"report.severity": "",
		"report.strict":   false,
		"report.dir":      ".",
		"report.keep_raw": false,

		"output.verbose":  false,
		"output.quiet":    false,
		"output.fancy":    false,
		"output.log_json": false,

		"observability.environment":      DefaultEnvironment,
		"observability.otlp_endpoint":    "",
		"observability.otlp_headers":     "",
		"observability.otlp_insecure":    false,
		"observability.sample_ratio":     DefaultSampleRatio,
		"observability.diagnostics_addr": "",
	}
}
