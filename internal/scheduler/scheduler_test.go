package scheduler_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/hydraql/internal/analyzer"
	"github.com/Sumatoshi-tech/hydraql/internal/catalog"
	"github.com/Sumatoshi-tech/hydraql/internal/failurelog"
	"github.com/Sumatoshi-tech/hydraql/internal/lockfile"
	"github.com/Sumatoshi-tech/hydraql/internal/registry"
	"github.com/Sumatoshi-tech/hydraql/internal/report"
	"github.com/Sumatoshi-tech/hydraql/internal/scheduler"
	"github.com/Sumatoshi-tech/hydraql/internal/severity"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	diagLocked   = "A fatal error occurred: cache directory is already locked by another process"
	diagFinalize = "database needs to be finalized before running queries"
	diagOther    = "query compilation failed"
	rawHeader    = "name,description,severity,message,path,sl,sc,el,ec\n"
)

// script decides the error of attempt n (1-based) of a query.
type script func(attempt int) error

func fail(diag string) error {
	return &analyzer.Failure{Op: "analyze", ExitCode: 2, Diagnostic: diag}
}

func failFirst(diag string) script {
	return func(attempt int) error {
		if attempt == 1 {
			return fail(diag)
		}

		return nil
	}
}

func failAlways(diag string) script {
	return func(int) error { return fail(diag) }
}

type fakeAnalyzer struct {
	mu        sync.Mutex
	scripts   map[string]script
	attempts  map[string]int
	finalized []string
	findings  int
	noOutput  bool
	delay     time.Duration

	inflight    sync.Map // db root -> *atomic.Int32
	maxInflight atomic.Int32
}

func newFakeAnalyzer(findings int) *fakeAnalyzer {
	return &fakeAnalyzer{scripts: map[string]script{}, attempts: map[string]int{}, findings: findings}
}

func (f *fakeAnalyzer) counter(db string) *atomic.Int32 {
	value, _ := f.inflight.LoadOrStore(db, &atomic.Int32{})

	return value.(*atomic.Int32)
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req analyzer.AnalyzeRequest) error {
	current := f.counter(req.Database).Add(1)
	defer f.counter(req.Database).Add(-1)

	for {
		seen := f.maxInflight.Load()
		if current <= seen || f.maxInflight.CompareAndSwap(seen, current) {
			break
		}
	}

	time.Sleep(f.delay)

	f.mu.Lock()
	f.attempts[req.Query]++
	attempt := f.attempts[req.Query]
	run := f.scripts[req.Query]
	f.mu.Unlock()

	if run != nil {
		if err := run(attempt); err != nil {
			return err
		}
	}

	if f.noOutput {
		return nil
	}

	var sb strings.Builder

	sb.WriteString(rawHeader)

	for idx := range f.findings {
		fmt.Fprintf(&sb, "%s,d,error,m%d,src/A.java,1,1,1,1\n", filepath.Base(req.Query), idx)
	}

	return os.WriteFile(req.Output, []byte(sb.String()), 0o600)
}

func (f *fakeAnalyzer) Finalize(_ context.Context, database string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.finalized = append(f.finalized, database)

	return nil
}

type recordingSweeper struct {
	mu       sync.Mutex
	policies []lockfile.Policy
}

func (s *recordingSweeper) Sweep(_ string, policy lockfile.Policy) []lockfile.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.policies = append(s.policies, policy)

	return nil
}

type countingRecorder struct {
	attempts atomic.Int32
	retries  atomic.Int32
	failures atomic.Int32
}

func (r *countingRecorder) RecordAttempt(context.Context, string, time.Duration, error) {
	r.attempts.Add(1)
}

func (r *countingRecorder) RecordRetry(context.Context, string, string) { r.retries.Add(1) }

func (r *countingRecorder) RecordOutcome(_ context.Context, _ string, ok bool, _ int) {
	if !ok {
		r.failures.Add(1)
	}
}

func (r *countingRecorder) RecordLocks(context.Context, int) {}

func (r *countingRecorder) TrackInflight(context.Context, string) func() { return func() {} }

func item(query, language, root string) scheduler.WorkItem {
	return scheduler.WorkItem{
		Query:    catalog.Query{Path: query, Language: language, Name: filepath.Base(query)},
		Database: registry.Database{Language: language, Root: root, Readiness: registry.Ready},
	}
}

func openLog(t *testing.T) *failurelog.Log {
	t.Helper()

	log, err := failurelog.Open(filepath.Join(t.TempDir(), "failures.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

func newScheduler(t *testing.T, an scheduler.Analyzer, sweeper scheduler.LockSweeper, opts scheduler.Options,
	log *failurelog.Log, recorder scheduler.Recorder,
) *scheduler.Scheduler {
	t.Helper()

	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}

	if opts.Format == "" {
		opts.Format = report.FormatCSV
	}

	if opts.Retry.Delay == 0 {
		opts.Retry = scheduler.RetryPolicy{Delay: time.Millisecond, Locks: opts.LockPolicy.Forced()}
	}

	return scheduler.New(opts, an, sweeper, recorder, log, nil, discardLogger)
}

func TestRun_NoOverlapWithinDatabase(t *testing.T) {
	t.Parallel()

	an := newFakeAnalyzer(1)
	an.delay = 3 * time.Millisecond

	var items []scheduler.WorkItem

	for idx := range 10 {
		items = append(items, item(fmt.Sprintf("/q/java/Q%d.ql", idx), "java", "/db/java"))
	}

	sched := newScheduler(t, an, &recordingSweeper{}, scheduler.Options{Workers: 8}, nil, nil)

	outcomes := sched.Run(t.Context(), items)

	require.Len(t, outcomes, len(items))
	assert.Equal(t, int32(1), an.maxInflight.Load())
	assert.Equal(t, 1, sched.Gates().Len())

	for idx, out := range outcomes {
		assert.True(t, out.OK)
		assert.Equal(t, items[idx].Query.Path, out.Item.Query.Path)
		assert.Equal(t, 1, out.Findings)
	}
}

func TestRun_DatabasesProceedIndependently(t *testing.T) {
	t.Parallel()

	an := newFakeAnalyzer(0)

	items := []scheduler.WorkItem{
		item("/q/A.ql", "java", "/db/java"),
		item("/q/B.ql", "python", "/db/python"),
		item("/q/C.ql", "java", "/db/java"),
	}

	sched := newScheduler(t, an, &recordingSweeper{}, scheduler.Options{Workers: 2}, nil, nil)

	outcomes := sched.Run(t.Context(), items)

	assert.Equal(t, 2, sched.Gates().Len())

	for _, out := range outcomes {
		assert.True(t, out.OK)
		assert.Zero(t, out.Findings)
		assert.FileExists(t, out.Output)
	}
}

func TestRun_LockContentionRetriesOnceWithForcedClear(t *testing.T) {
	t.Parallel()

	an := newFakeAnalyzer(2)
	an.scripts["/q/Sqli.ql"] = failFirst(diagLocked)

	sweeper := &recordingSweeper{}
	configured := lockfile.Policy{CheckOwner: true, KillOwner: true}
	recorder := &countingRecorder{}
	log := openLog(t)

	sched := newScheduler(t, an, sweeper, scheduler.Options{Workers: 1, LockPolicy: configured}, log, recorder)

	outcomes := sched.Run(t.Context(), []scheduler.WorkItem{item("/q/Sqli.ql", "java", "/db/java")})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].OK)
	assert.True(t, outcomes[0].Retried)
	assert.Equal(t, 2, outcomes[0].Attempts)
	assert.Equal(t, 2, outcomes[0].Findings)
	assert.Equal(t, []lockfile.Policy{configured, configured.Forced(), configured}, sweeper.policies)
	assert.Equal(t, int32(2), recorder.attempts.Load())
	assert.Equal(t, int32(1), recorder.retries.Load())
	assert.Zero(t, log.Count())
}

func TestRun_TerminalFailureLoggedOnce(t *testing.T) {
	t.Parallel()

	an := newFakeAnalyzer(1)
	an.scripts["/q/Bad.ql"] = failAlways(diagLocked)
	an.scripts["/q/Broken.ql"] = failAlways(diagOther)

	log := openLog(t)
	recorder := &countingRecorder{}

	sched := newScheduler(t, an, &recordingSweeper{}, scheduler.Options{Workers: 3}, log, recorder)

	outcomes := sched.Run(t.Context(), []scheduler.WorkItem{
		item("/q/Bad.ql", "java", "/db/java"),
		item("/q/Broken.ql", "java", "/db/java"),
		item("/q/Good.ql", "java", "/db/java"),
	})

	assert.False(t, outcomes[0].OK)
	assert.Equal(t, 2, outcomes[0].Attempts)
	assert.True(t, outcomes[0].Condition.Has(analyzer.ConditionCacheLocked))
	assert.Empty(t, outcomes[0].Output)

	assert.False(t, outcomes[1].OK)
	assert.Equal(t, 1, outcomes[1].Attempts)
	assert.False(t, outcomes[1].Retried)

	assert.True(t, outcomes[2].OK)

	require.NoError(t, log.Close())
	assert.Equal(t, 2, log.Count())
	assert.Equal(t, int32(2), recorder.failures.Load())

	content, err := os.ReadFile(log.Path())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "FAIL /q/Bad.ql on java (/db/java):"))
	assert.Contains(t, string(content), diagOther)
}

func TestRun_FinalizeRecovery(t *testing.T) {
	t.Parallel()

	an := newFakeAnalyzer(0)
	an.scripts["/q/A.ql"] = failFirst(diagFinalize)

	sched := newScheduler(t, an, &recordingSweeper{}, scheduler.Options{Workers: 1, AutoFinalize: true}, nil, nil)

	outcomes := sched.Run(t.Context(), []scheduler.WorkItem{item("/q/A.ql", "java", "/db/java")})

	assert.True(t, outcomes[0].OK)
	assert.Equal(t, 2, outcomes[0].Attempts)
	assert.Equal(t, []string{"/db/java"}, an.finalized)

	disabled := newFakeAnalyzer(0)
	disabled.scripts["/q/A.ql"] = failFirst(diagFinalize)

	outcomes = newScheduler(t, disabled, &recordingSweeper{}, scheduler.Options{Workers: 1}, nil, nil).
		Run(t.Context(), []scheduler.WorkItem{item("/q/A.ql", "java", "/db/java")})

	assert.False(t, outcomes[0].OK)
	assert.Equal(t, 1, outcomes[0].Attempts)
	assert.Empty(t, disabled.finalized)
}

func TestRun_MissingOutputCountsZero(t *testing.T) {
	t.Parallel()

	an := newFakeAnalyzer(5)
	an.noOutput = true

	outcomes := newScheduler(t, an, &recordingSweeper{}, scheduler.Options{}, nil, nil).
		Run(t.Context(), []scheduler.WorkItem{item("/q/A.ql", "java", "/db/java")})

	assert.True(t, outcomes[0].OK)
	assert.Empty(t, outcomes[0].Output)
	assert.Zero(t, outcomes[0].Findings)
}

func TestRun_AliasedLanguageScenario(t *testing.T) {
	t.Parallel()

	an := newFakeAnalyzer(2)
	an.scripts["/q/ts/Fails.ql"] = failAlways(diagOther)

	log := openLog(t)
	workDir := t.TempDir()

	// Queries importing typescript resolve to the javascript database.
	items := []scheduler.WorkItem{
		item("/q/ts/Xss.ql", "javascript", "/db/javascript"),
		item("/q/ts/Fails.ql", "javascript", "/db/javascript"),
		item("/q/ts/Proto.ql", "javascript", "/db/javascript"),
	}

	outcomes := newScheduler(t, an, &recordingSweeper{}, scheduler.Options{Workers: 3, WorkDir: workDir}, log, nil).
		Run(t.Context(), items)

	var raws []string

	for _, out := range outcomes {
		if out.OK {
			raws = append(raws, out.Output)
		}
	}

	require.Len(t, raws, 2)

	merged := filepath.Join(t.TempDir(), "merged.csv")

	rep, err := report.NewAggregator(report.FormatCSV, severity.NewMatcher("", false), discardLogger).Merge(raws, merged)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 1, log.Count())

	content, err := os.ReadFile(merged)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	assert.Equal(t, strings.Join(report.CSVHeader, ","), lines[0])
	assert.Len(t, lines, 5)
	assert.NotContains(t, string(content), "Fails.ql")
}

func TestRun_SpansPerItem(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	an := newFakeAnalyzer(1)
	an.scripts["/q/B.ql"] = failAlways(diagOther)

	sched := scheduler.New(scheduler.Options{Workers: 2, Format: report.FormatCSV, WorkDir: t.TempDir()},
		an, &recordingSweeper{}, nil, nil, provider.Tracer("test"), discardLogger)

	sched.Run(t.Context(), []scheduler.WorkItem{
		item("/q/A.ql", "java", "/db/java"),
		item("/q/B.ql", "java", "/db/java"),
	})

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	failed := 0

	for _, span := range spans {
		assert.Equal(t, "hydraql.scan.item", span.Name())

		if span.Status().Code == codes.Error {
			failed++
		}
	}

	assert.Equal(t, 1, failed)
}

func TestGateSet_AcquireHonorsContext(t *testing.T) {
	t.Parallel()

	gates := scheduler.NewGateSet()

	release, err := gates.Acquire(t.Context(), "/db/java")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()

	_, err = gates.Acquire(ctx, "/db/java")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := gates.Acquire(t.Context(), "/db/python")
	require.NoError(t, err)

	release()
	other()

	again, err := gates.Acquire(t.Context(), "/db/java")
	require.NoError(t, err)
	again()
}

func TestDefaultRetryPolicy(t *testing.T) {
	t.Parallel()

	policy := scheduler.DefaultRetryPolicy(lockfile.Policy{KillOwner: true, CheckOwner: true})

	assert.Equal(t, scheduler.DefaultRetryDelay, policy.Delay)
	assert.Equal(t, lockfile.Policy{Clear: true, CheckOwner: true}, policy.Locks)
}
