package scheduler

import (
	"context"
	"time"
)

// Recorder receives scan telemetry.
type Recorder interface {
	RecordAttempt(ctx context.Context, language string, duration time.Duration, err error)
	RecordRetry(ctx context.Context, language, reason string)
	RecordOutcome(ctx context.Context, language string, ok bool, findings int)
	RecordLocks(ctx context.Context, count int)
	TrackInflight(ctx context.Context, language string) func()
}

type nopRecorder struct{}

func (nopRecorder) RecordAttempt(context.Context, string, time.Duration, error) {}

func (nopRecorder) RecordRetry(context.Context, string, string) {}

func (nopRecorder) RecordOutcome(context.Context, string, bool, int) {}

func (nopRecorder) RecordLocks(context.Context, int) {}

func (nopRecorder) TrackInflight(context.Context, string) func() { return func() {} }
