package scheduler

import (
	"context"
	"time"

	"github.com/Sumatoshi-tech/hydraql/internal/lockfile"
)

// DefaultRetryDelay is the pause before the single retry of a work item.
const DefaultRetryDelay = 250 * time.Millisecond

// RetryPolicy configures the recovery path of a failed attempt. It is passed
// alongside the regular lock policy and never derived by mutating it.
type RetryPolicy struct {
	// Delay is waited before the retry.
	Delay time.Duration
	// Locks is applied when an attempt failed on cache lock contention.
	Locks lockfile.Policy
}

// DefaultRetryPolicy returns the recovery policy for a configured lock
// policy: locks are force-cleared, owners are never terminated.
func DefaultRetryPolicy(configured lockfile.Policy) RetryPolicy {
	return RetryPolicy{Delay: DefaultRetryDelay, Locks: configured.Forced()}
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
