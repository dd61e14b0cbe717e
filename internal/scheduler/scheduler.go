// Package scheduler runs (query, database) work items on a bounded worker
// pool while keeping every database to one analyzer process at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/hydraql/internal/analyzer"
	"github.com/Sumatoshi-tech/hydraql/internal/catalog"
	"github.com/Sumatoshi-tech/hydraql/internal/failurelog"
	"github.com/Sumatoshi-tech/hydraql/internal/lockfile"
	"github.com/Sumatoshi-tech/hydraql/internal/registry"
	"github.com/Sumatoshi-tech/hydraql/internal/report"
	"github.com/Sumatoshi-tech/hydraql/internal/severity"
	"github.com/Sumatoshi-tech/hydraql/pkg/observability"
)

const (
	tracerName = "hydraql/scheduler"
	spanItem   = "hydraql.scan.item"

	// DefaultWorkers is the worker pool size used when none is configured.
	DefaultWorkers = 6

	// rawIDLength is how many characters of a UUID suffix a raw result name.
	rawIDLength = 8

	reasonFinalize = "needs-finalization"
	reasonLock     = "cache-locked"
)

// WorkItem pairs a query with the database it runs against.
type WorkItem struct {
	Query    catalog.Query
	Database registry.Database
}

// Outcome is the result of one work item.
type Outcome struct {
	Item WorkItem
	// OK is set when an attempt succeeded.
	OK bool
	// Output is the raw result file, empty when the analyzer wrote none.
	Output   string
	Findings int
	Attempts int
	Retried  bool
	// Condition classifies the last failed attempt.
	Condition analyzer.Condition
	Err       error
	Duration  time.Duration
}

// Analyzer is the subset of the analyzer contract the scheduler drives.
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.AnalyzeRequest) error
	Finalize(ctx context.Context, database string) error
}

// LockSweeper applies a lock policy to a database root.
type LockSweeper interface {
	Sweep(root string, policy lockfile.Policy) []lockfile.Observation
}

// Options configures a Scheduler.
type Options struct {
	Workers int
	Format  report.Format
	// WorkDir receives the raw per-item result files.
	WorkDir      string
	Matcher      severity.Matcher
	AutoFinalize bool
	// LockPolicy is applied before every attempt.
	LockPolicy lockfile.Policy
	Retry      RetryPolicy
}

// Scheduler executes work items.
type Scheduler struct {
	opts     Options
	analyzer Analyzer
	locks    LockSweeper
	recorder Recorder
	failures *failurelog.Log
	gates    *GateSet
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New creates a Scheduler. A nil recorder or tracer disables telemetry; a nil
// failure log drops failure records.
func New(
	opts Options, an Analyzer, locks LockSweeper, recorder Recorder,
	failures *failurelog.Log, tracer trace.Tracer, logger *slog.Logger,
) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}

	if recorder == nil {
		recorder = nopRecorder{}
	}

	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracerName)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		opts:     opts,
		analyzer: an,
		locks:    locks,
		recorder: recorder,
		failures: failures,
		gates:    NewGateSet(),
		tracer:   tracer,
		logger:   logger,
	}
}

// Gates exposes the per-database gates.
func (s *Scheduler) Gates() *GateSet {
	return s.gates
}

// Run executes every item and returns their outcomes in input order. A
// failing item never stops the others.
func (s *Scheduler) Run(ctx context.Context, items []WorkItem) []Outcome {
	outcomes := make([]Outcome, len(items))

	var group errgroup.Group

	group.SetLimit(s.opts.Workers)

	for idx, item := range items {
		group.Go(func() error {
			outcomes[idx] = s.execute(ctx, item)

			return nil
		})
	}

	_ = group.Wait()

	return outcomes
}

func (s *Scheduler) execute(ctx context.Context, item WorkItem) Outcome {
	language := item.Database.Language

	ctx, span := s.tracer.Start(ctx, spanItem, trace.WithAttributes(
		attribute.String("scan.query", item.Query.Path),
		attribute.String("scan.language", language),
		attribute.String("scan.db", item.Database.Root),
	))
	defer span.End()

	ctx = observability.WithWorkItem(ctx, item.Query.Path, language)

	start := time.Now()
	out := Outcome{Item: item, Output: filepath.Join(s.opts.WorkDir, rawName(item, s.opts.Format))}

	s.logger.Info("running query", "query", item.Query.Name, "language", language)

	runErr := s.runGated(ctx, item, &out)
	out.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("scan.attempts", out.Attempts),
		attribute.Bool("scan.retried", out.Retried),
	)

	if runErr != nil {
		out.Err = runErr
		out.Output = ""

		s.recordFailure(item, runErr)
		s.recorder.RecordOutcome(ctx, language, false, 0)

		span.SetAttributes(attribute.String("scan.condition", out.Condition.String()))
		span.SetStatus(codes.Error, "work item failed")

		return out
	}

	out.OK = true

	_, statErr := os.Stat(out.Output)
	if errors.Is(statErr, fs.ErrNotExist) {
		s.logger.Debug("analyzer wrote no output", "query", item.Query.Path, "language", language)

		out.Output = ""
	} else {
		count, countErr := report.Count(out.Output, s.opts.Format, s.opts.Matcher)
		if countErr != nil {
			s.logger.Warn("unreadable result file; counting zero findings", "query", item.Query.Path, "error", countErr)
		}

		out.Findings = count
	}

	span.SetAttributes(attribute.Int("scan.findings", out.Findings))
	s.recorder.RecordOutcome(ctx, language, true, out.Findings)

	return out
}

// runGated owns the database gate for the whole attempt and recovery cycle.
func (s *Scheduler) runGated(ctx context.Context, item WorkItem, out *Outcome) error {
	root := item.Database.Root

	release, acquireErr := s.gates.Acquire(ctx, root)
	if acquireErr != nil {
		return fmt.Errorf("acquire database gate: %w", acquireErr)
	}
	defer release()

	err := s.attempt(ctx, item, out)
	if err == nil {
		return nil
	}

	out.Condition = analyzer.Classify(err)
	retry := false

	if out.Condition.Has(analyzer.ConditionNeedsFinalization) && s.opts.AutoFinalize {
		s.logger.Warn("database needs finalization; finalizing before retry", "db", root, "query", item.Query.Path)

		finalizeErr := s.analyzer.Finalize(ctx, root)
		if finalizeErr != nil {
			s.logger.Warn("finalize failed", "db", root, "error", finalizeErr)
		}

		s.sweep(ctx, root, s.opts.LockPolicy)
		s.recorder.RecordRetry(ctx, item.Database.Language, reasonFinalize)

		retry = true
	}

	if out.Condition.Has(analyzer.ConditionCacheLocked) {
		s.logger.Warn("cache locked; clearing locks before retry", "db", root, "query", item.Query.Path)

		s.sweep(ctx, root, s.opts.Retry.Locks)
		s.recorder.RecordRetry(ctx, item.Database.Language, reasonLock)

		retry = true
	}

	if !retry {
		return err
	}

	out.Retried = true

	waitErr := wait(ctx, s.opts.Retry.Delay)
	if waitErr != nil {
		return errors.Join(err, waitErr)
	}

	retryErr := s.attempt(ctx, item, out)
	if retryErr != nil {
		out.Condition = analyzer.Classify(retryErr)

		return retryErr
	}

	return nil
}

func (s *Scheduler) sweep(ctx context.Context, root string, policy lockfile.Policy) {
	observed := s.locks.Sweep(root, policy)
	s.recorder.RecordLocks(ctx, len(observed))
}

func (s *Scheduler) attempt(ctx context.Context, item WorkItem, out *Outcome) error {
	out.Attempts++

	s.sweep(ctx, item.Database.Root, s.opts.LockPolicy)

	done := s.recorder.TrackInflight(ctx, item.Database.Language)
	defer done()

	start := time.Now()

	err := s.analyzer.Analyze(ctx, analyzer.AnalyzeRequest{
		Database: item.Database.Root,
		Query:    item.Query.Path,
		Format:   s.opts.Format.AnalyzerArg(),
		Output:   out.Output,
	})

	s.recorder.RecordAttempt(ctx, item.Database.Language, time.Since(start), err)

	if err != nil {
		s.logger.DebugContext(ctx, "attempt failed", "attempt", out.Attempts, "error", err)
	}

	return err
}

func (s *Scheduler) recordFailure(item WorkItem, err error) {
	s.logger.Error("query failed", "query", item.Query.Path, "language", item.Database.Language, "error", err)

	if s.failures == nil {
		return
	}

	appendErr := s.failures.Append(failurelog.Entry{
		Query:      item.Query.Path,
		Language:   item.Database.Language,
		Database:   item.Database.Root,
		Diagnostic: analyzer.Diagnostic(err),
	})
	if appendErr != nil {
		s.logger.Warn("failed to record failure", "error", appendErr)
	}
}

// rawName builds a collision-free raw result file name for item.
func rawName(item WorkItem, format report.Format) string {
	base := filepath.Base(item.Query.Path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	return fmt.Sprintf("%s_%s_%s.%s", stem, item.Database.Language, uuid.NewString()[:rawIDLength], format.Extension())
}
