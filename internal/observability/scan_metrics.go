package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricAttempts   = "scan.attempts"
	metricRetries    = "scan.retries"
	metricFailures   = "scan.failures"
	metricFindings   = "scan.findings"
	metricDuration   = "analyzer.duration.seconds"
	metricInflight   = "analyzer.inflight"
	metricLocksFound = "locks.detected"

	attrLanguage = "language"
	attrStatus   = "status"
	attrReason   = "reason"

	statusOK    = "ok"
	statusError = "error"
)

// analyzerBuckets covers quick single queries up to long suite runs.
var analyzerBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600}

// ScanMetrics holds the instruments recorded by the scan scheduler.
type ScanMetrics struct {
	attempts   metric.Int64Counter
	retries    metric.Int64Counter
	failures   metric.Int64Counter
	findings   metric.Int64Counter
	duration   metric.Float64Histogram
	inflight   metric.Int64UpDownCounter
	locksFound metric.Int64Counter
}

// NewScanMetrics creates the scan instruments on mt.
func NewScanMetrics(mt metric.Meter) (*ScanMetrics, error) {
	set := &instrumentSet{meter: mt}

	sm := &ScanMetrics{
		attempts:   set.count(metricAttempts, "Analyzer invocations", "{attempt}"),
		retries:    set.count(metricRetries, "Work items retried after recovery", "{retry}"),
		failures:   set.count(metricFailures, "Work items that failed terminally", "{item}"),
		findings:   set.count(metricFindings, "Findings counted after severity filtering", "{finding}"),
		duration:   set.seconds(metricDuration, "Analyzer invocation duration"),
		inflight:   set.level(metricInflight, "Analyzer processes currently running", "{process}"),
		locksFound: set.count(metricLocksFound, "Cache lock files found during sweeps", "{lock}"),
	}

	err := set.err()
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordAttempt records one analyzer invocation.
func (sm *ScanMetrics) RecordAttempt(ctx context.Context, language string, duration time.Duration, err error) {
	status := statusOK
	if err != nil {
		status = statusError
	}

	attrs := metric.WithAttributes(attribute.String(attrLanguage, language), attribute.String(attrStatus, status))

	sm.attempts.Add(ctx, 1, attrs)
	sm.duration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRetry records a recovery-triggered retry.
func (sm *ScanMetrics) RecordRetry(ctx context.Context, language, reason string) {
	sm.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrLanguage, language),
		attribute.String(attrReason, reason),
	))
}

// RecordOutcome records the final state of a work item.
func (sm *ScanMetrics) RecordOutcome(ctx context.Context, language string, ok bool, findings int) {
	attrs := metric.WithAttributes(attribute.String(attrLanguage, language))

	if !ok {
		sm.failures.Add(ctx, 1, attrs)

		return
	}

	sm.findings.Add(ctx, int64(findings), attrs)
}

// RecordLocks records lock files found by one sweep.
func (sm *ScanMetrics) RecordLocks(ctx context.Context, count int) {
	if count > 0 {
		sm.locksFound.Add(ctx, int64(count))
	}
}

// TrackInflight increments the in-flight gauge and returns its decrement.
func (sm *ScanMetrics) TrackInflight(ctx context.Context, language string) func() {
	attrs := metric.WithAttributes(attribute.String(attrLanguage, language))
	sm.inflight.Add(ctx, 1, attrs)

	return func() {
		sm.inflight.Add(ctx, -1, attrs)
	}
}
