// Package engine runs a complete scan: database resolution, query discovery,
// scheduling and report merging.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/hydraql/internal/catalog"
	"github.com/Sumatoshi-tech/hydraql/internal/config"
	"github.com/Sumatoshi-tech/hydraql/internal/failurelog"
	"github.com/Sumatoshi-tech/hydraql/internal/observability"
	"github.com/Sumatoshi-tech/hydraql/internal/registry"
	"github.com/Sumatoshi-tech/hydraql/internal/report"
	"github.com/Sumatoshi-tech/hydraql/internal/scheduler"
	"github.com/Sumatoshi-tech/hydraql/internal/severity"
)

const (
	tracerName = "hydraql/engine"
	spanRun    = "hydraql.scan"

	// OutputPrefix starts the name of every merged report.
	OutputPrefix = "HydraQL_output-"

	timestampLayout = "20060102-150405"
	workDirPattern  = "hydraql-raw-*"
)

// Sentinel errors for fatal preconditions and the overall run status.
var (
	// ErrNoDatabases indicates no requested language has a scannable database.
	ErrNoDatabases = errors.New("no scannable databases")
	// ErrNoQueries indicates discovery found nothing to run.
	ErrNoQueries = errors.New("no queries found for the available databases")
	// ErrNoSuccessfulQueries indicates work items ran and every one failed.
	ErrNoSuccessfulQueries = errors.New("no query completed successfully")
)

// Analyzer is the full analyzer contract the engine needs.
type Analyzer interface {
	scheduler.Analyzer
	registry.Manager
	InstallPacks(ctx context.Context) error
}

// LockSweeper applies a lock policy to a database root.
type LockSweeper interface {
	scheduler.LockSweeper
}

// Deps are the collaborators of an Engine. Analyzer and Locks are required.
type Deps struct {
	Analyzer Analyzer
	Locks    LockSweeper
	Recorder scheduler.Recorder
	Tracer   trace.Tracer
	Status   *observability.ScanStatus
	Logger   *slog.Logger
	Now      func() time.Time
}

// Engine runs scans.
type Engine struct {
	cfg  *config.Config
	deps Deps
}

// New creates an Engine for cfg.
func New(cfg *config.Config, deps Deps) *Engine {
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer(tracerName)
	}

	if deps.Status == nil {
		deps.Status = observability.NewScanStatus()
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Engine{cfg: cfg, deps: deps}
}

// Run executes one scan. Fatal preconditions are returned before any work item
// is submitted. When work items ran and none succeeded, the populated Result
// is returned together with ErrNoSuccessfulQueries.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := e.deps.Now()

	ctx, span := e.deps.Tracer.Start(ctx, spanRun, trace.WithAttributes(
		attribute.StringSlice("scan.languages", e.cfg.Languages),
		attribute.Bool("scan.dry_run", e.cfg.Scan.DryRun),
	))
	defer span.End()

	res, err := e.run(ctx)
	if res != nil {
		res.Elapsed = e.deps.Now().Sub(start)

		span.SetAttributes(attribute.Int("scan.items", len(res.Items)), attribute.Int("scan.failures", res.Failures))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
	}

	e.deps.Status.Set(observability.PhaseDone)

	return res, err
}

func (e *Engine) run(ctx context.Context) (*Result, error) {
	logger := e.deps.Logger
	e.deps.Status.Set(observability.PhaseResolving)

	if e.cfg.Analyzer.PackInstall && !e.cfg.Scan.DryRun {
		logger.Info("installing query packs")

		installErr := e.deps.Analyzer.InstallPacks(ctx)
		if installErr != nil {
			logger.Warn("pack install failed; continuing", "error", installErr)
		}
	}

	resolution, err := e.resolve(ctx)
	if err != nil {
		return &Result{Resolution: resolution, DryRun: e.cfg.Scan.DryRun}, err
	}

	res := &Result{Resolution: resolution, DryRun: e.cfg.Scan.DryRun}

	ready := resolution.ReadyLanguages()
	if len(ready) == 0 {
		return res, ErrNoDatabases
	}

	queries, err := catalog.New(catalog.Options{
		Dirs:      e.cfg.Queries.Dirs,
		Languages: ready,
		SuiteOnly: e.cfg.Queries.SuiteOnly,
	}, logger).Discover()
	if err != nil {
		return res, fmt.Errorf("discover queries: %w", err)
	}

	if len(queries) == 0 {
		return res, ErrNoQueries
	}

	res.Queries = queries
	res.Items = plan(queries, resolution)

	if len(res.Items) == 0 {
		return res, ErrNoQueries
	}

	if e.cfg.Scan.DryRun {
		for _, item := range res.Items {
			logger.Info("planned", "query", item.Query.Name, "language", item.Database.Language, "db", item.Database.Root)
		}

		return res, nil
	}

	scanErr := e.scan(ctx, res)
	if scanErr != nil {
		return res, scanErr
	}

	if res.Succeeded() == 0 {
		return res, ErrNoSuccessfulQueries
	}

	return res, nil
}

func (e *Engine) resolve(ctx context.Context) (*registry.Resolution, error) {
	reg := registry.New(registry.Options{
		Root:         e.cfg.Databases.Root,
		Languages:    e.cfg.Languages,
		AutoCreate:   e.cfg.Databases.AutoCreate,
		SourceRoot:   e.cfg.Databases.SourceRoot,
		AutoFinalize: e.cfg.Databases.AutoFinalize,
		AllowMissing: e.cfg.Databases.AllowMissing,
		ForceUnready: e.cfg.Databases.ForceUnready,
		DryRun:       e.cfg.Scan.DryRun,
		LockPolicy:   e.cfg.LockPolicy(),
	}, e.deps.Analyzer, e.deps.Locks, e.deps.Logger)

	resolution, err := reg.Resolve(ctx)
	if err != nil {
		return resolution, fmt.Errorf("resolve databases: %w", err)
	}

	for _, language := range resolution.Skipped {
		e.deps.Logger.Warn("skipping empty database", "language", language)
	}

	return resolution, nil
}

// plan builds the cross product of queries and the database of their language.
func plan(queries []catalog.Query, resolution *registry.Resolution) []scheduler.WorkItem {
	items := make([]scheduler.WorkItem, 0, len(queries))

	for _, query := range queries {
		db, ok := resolution.Lookup(query.Language)
		if !ok {
			continue
		}

		items = append(items, scheduler.WorkItem{Query: query, Database: db})
	}

	return items
}

func (e *Engine) scan(ctx context.Context, res *Result) error {
	logger := e.deps.Logger
	format := e.cfg.ReportFormat()
	matcher := severity.NewMatcher(e.cfg.Report.Severity, e.cfg.Report.Strict)

	workDir, err := os.MkdirTemp("", workDirPattern)
	if err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}

	if e.cfg.Report.KeepRaw {
		logger.Info("keeping raw results", "dir", workDir)
	} else {
		defer func() {
			removeErr := os.RemoveAll(workDir)
			if removeErr != nil {
				logger.Warn("remove working directory", "dir", workDir, "error", removeErr)
			}
		}()
	}

	retry := scheduler.DefaultRetryPolicy(e.cfg.LockPolicy())
	retry.Delay = e.cfg.Scan.RetryDelay

	failures, err := failurelog.Open(e.cfg.Scan.FailureLog)
	if err != nil {
		return fmt.Errorf("open failure log: %w", err)
	}

	sched := scheduler.New(scheduler.Options{
		Workers:      e.cfg.Scan.Workers,
		Format:       format,
		WorkDir:      workDir,
		Matcher:      matcher,
		AutoFinalize: e.cfg.Databases.AutoFinalize,
		LockPolicy:   e.cfg.LockPolicy(),
		Retry:        retry,
	}, e.deps.Analyzer, e.deps.Locks, e.deps.Recorder, failures, e.deps.Tracer, logger)

	e.deps.Status.Set(observability.PhaseScanning)
	logger.Info("scanning", "items", len(res.Items), "workers", e.cfg.Scan.Workers)

	res.Outcomes = sched.Run(ctx, res.Items)
	res.Failures = failures.Count()
	res.FailureLog = failures.Path()

	closeErr := failures.Close()
	if closeErr != nil {
		logger.Warn("close failure log", "error", closeErr)
	}

	e.deps.Status.Set(observability.PhaseMerging)

	var raw []string

	for _, outcome := range res.Outcomes {
		if outcome.OK && outcome.Output != "" {
			raw = append(raw, outcome.Output)
		}
	}

	out := filepath.Join(e.cfg.Report.Dir, OutputPrefix+e.deps.Now().Format(timestampLayout)+"."+format.Extension())

	rep, err := report.NewAggregator(format, matcher, logger).Merge(raw, out)
	if err != nil {
		return fmt.Errorf("merge results: %w", err)
	}

	res.Report = rep

	logger.Info("report written", "path", rep.Path, "findings", rep.Total)

	return nil
}
