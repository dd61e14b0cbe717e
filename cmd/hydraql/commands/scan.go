// Package commands implements CLI command handlers for hydraql.
package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/farcloser/primordium/fault"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/hydraql/internal/analyzer"
	"github.com/Sumatoshi-tech/hydraql/internal/config"
	"github.com/Sumatoshi-tech/hydraql/internal/engine"
	"github.com/Sumatoshi-tech/hydraql/internal/lockfile"
	scanobs "github.com/Sumatoshi-tech/hydraql/internal/observability"
	"github.com/Sumatoshi-tech/hydraql/internal/summary"
	"github.com/Sumatoshi-tech/hydraql/pkg/observability"
	"github.com/Sumatoshi-tech/hydraql/pkg/version"
)

type engineRunner func(ctx context.Context, cfg *config.Config, deps engine.Deps) (*engine.Result, error)

type preflightCheck func(cli *analyzer.CLI, cfg *config.Config) error

// ScanCommand holds the dependencies of the scan command.
type ScanCommand struct {
	configPath string

	runEngine engineRunner
	preflight preflightCheck
}

// NewScanCommand creates the scan command.
func NewScanCommand() *cobra.Command {
	return newScanCommandWithDeps(runEngine, requireAnalyzer)
}

func newScanCommandWithDeps(runner engineRunner, preflight preflightCheck) *cobra.Command {
	sc := &ScanCommand{runEngine: runner, preflight: preflight}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run queries against the language databases",
		Long: `Resolve one CodeQL database per language, discover queries and suites,
run every (query, database) pair on a bounded worker pool and merge the
results into HydraQL_output-<timestamp>.<format>.`,
		Args:          cobra.NoArgs,
		RunE:          sc.run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	registerScanFlags(cmd, &sc.configPath)

	return cmd
}

func registerScanFlags(cmd *cobra.Command, configPath *string) {
	flags := cmd.Flags()

	flags.StringVar(configPath, "config", "", "Config file (default: .hydraql.yaml in CWD or $HOME)")

	flags.StringP("languages", "l", "java,javascript,typescript,python", "Comma separated languages to scan")
	flags.String("db-root", config.DefaultDatabaseRoot, "Directory holding one database per language")
	flags.Bool("auto-init-db", false, "Create missing databases from --source-root")
	flags.String("source-root", "", "Source tree used by --auto-init-db")
	flags.Bool("auto-finalize-db", false, "Finalize unfinalized databases before and during the scan")
	flags.Bool("allow-missing-db", false, "Continue when a database is missing or unfinalized")
	flags.Bool("force-unready-db", false, "Scan databases classified empty")

	flags.StringSliceP("query-dir", "d", []string{config.DefaultQueryDir}, "Query directories (repeatable, comma separated)")
	flags.Bool("suite-only", false, "Run query suites only")

	flags.String("codeql", config.DefaultAnalyzer, "CodeQL executable")
	flags.Duration("timeout", 0, "Per analyzer invocation timeout (0 = none)")
	flags.Bool("pack-install", false, "Install query packs before scanning")

	flags.IntP("workers", "w", config.DefaultWorkers, "Number of parallel workers")
	flags.Duration("retry-delay", config.DefaultRetryDelay, "Pause before the single retry of a failed query")
	flags.Bool("dry-run", false, "Plan the scan without running the analyzer")
	flags.String("failure-log", config.DefaultFailureLog, "File receiving one entry per failed query")

	flags.Bool("unlock-cache", false, "Clear cache lock files before every analyzer run")
	flags.Bool("check-lock-process", false, "Report whether the process owning a lock is alive")
	flags.Bool("kill-lock-process", false, "Terminate the process owning a lock (dangerous)")

	flags.StringP("format", "f", config.DefaultFormat, "Report format: csv, json, sarif")
	flags.StringP("severity", "s", "", "Only keep findings of this severity")
	flags.Bool("strict-severity", false, "Match --severity exactly instead of by tier")
	flags.String("output-dir", ".", "Directory receiving the merged report")
	flags.Bool("keep-raw", false, "Keep the per-query raw result files")

	flags.BoolP("verbose", "v", false, "Debug logging")
	flags.BoolP("quiet", "q", false, "Errors only, no summary")
	flags.Bool("fancy", false, "Colored summary with a findings chart")
	flags.Bool("log-json", false, "Log as JSON")

	flags.String("otlp-endpoint", "", "OTLP gRPC endpoint for traces and metrics")
	flags.String("otlp-headers", "", "OTLP headers as key=value,key=value")
	flags.Bool("otlp-insecure", false, "Disable TLS for the OTLP exporter")
	flags.String("diagnostics-addr", "", "Serve /healthz, /readyz and /metrics on this address")
}

func (sc *ScanCommand) run(cmd *cobra.Command, _ []string) (retErr error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig(sc.configPath, cmd.Flags())
	if err != nil {
		return err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Observability.Environment
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.LogLevel = cfg.LogLevel()
	obsCfg.LogJSON = cfg.Output.LogJSON
	obsCfg.LogWriter = cmd.ErrOrStderr()

	if cfg.Scan.DryRun {
		obsCfg.Mode = observability.ModeDryRun
	}

	status := scanobs.NewScanStatus()

	var metricsHandler http.Handler

	if cfg.Observability.DiagnosticsAddr != "" {
		reader, handler, readerErr := scanobs.NewPrometheusReader()
		if readerErr != nil {
			return readerErr
		}

		obsCfg.MetricReaders = append(obsCfg.MetricReaders, reader)
		metricsHandler = handler
	}

	providers, err := observability.Init(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		retErr = errors.Join(retErr, providers.Shutdown(context.WithoutCancel(ctx)))
	}()

	logger := providers.Logger

	if metricsHandler != nil {
		srv, srvErr := scanobs.NewDiagnosticsServer(ctx, cfg.Observability.DiagnosticsAddr, metricsHandler, status, logger)
		if srvErr != nil {
			return srvErr
		}

		defer func() {
			retErr = errors.Join(retErr, srv.Close(context.WithoutCancel(ctx)))
		}()
	}

	metrics, err := scanobs.NewScanMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create scan metrics: %w", err)
	}

	cli := analyzer.New(analyzer.Options{
		Binary:  cfg.Analyzer.Binary,
		Timeout: cfg.Analyzer.Timeout,
		Logger:  logger,
	})

	err = sc.preflight(cli, cfg)
	if err != nil {
		return err
	}

	res, runErr := sc.runEngine(ctx, cfg, engine.Deps{
		Analyzer: cli,
		Locks:    lockfile.NewManager(logger),
		Recorder: metrics,
		Tracer:   providers.Tracer,
		Status:   status,
		Logger:   logger,
	})

	if res != nil && !cfg.Output.Quiet && (runErr == nil || errors.Is(runErr, engine.ErrNoSuccessfulQueries)) {
		renderErr := summary.Render(cmd.OutOrStdout(), res.Summary(), summary.Options{Fancy: cfg.Output.Fancy})
		if renderErr != nil {
			logger.Warn("render summary", "error", renderErr)
		}
	}

	return runErr
}

func runEngine(ctx context.Context, cfg *config.Config, deps engine.Deps) (*engine.Result, error) {
	return engine.New(cfg, deps).Run(ctx)
}

// requireAnalyzer fails fast when the analyzer binary cannot be found. Dry
// runs never invoke it.
func requireAnalyzer(cli *analyzer.CLI, cfg *config.Config) error {
	if cfg.Scan.DryRun {
		return nil
	}

	_, ok := cli.Available()
	if !ok {
		return fmt.Errorf("%w: analyzer %q not found in PATH", fault.ErrMissingRequirements, cfg.Analyzer.Binary)
	}

	return nil
}
