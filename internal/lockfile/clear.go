package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Clearing strategies, in escalation order.
const (
	StrategyAbsent         = "absent"
	StrategyDelete         = "delete"
	StrategyChmodDelete    = "chmod+delete"
	StrategyTruncateDelete = "truncate+delete"
	StrategyRename         = "rename"
)

const relaxedLockMode = 0o666

// ClearResult reports the outcome of clearing one lock file.
type ClearResult struct {
	Path string
	// Strategy names the strategy that succeeded; empty when all failed.
	Strategy string
	// StalePath is the sidecar name when the rename strategy succeeded.
	StalePath string
	Cleared   bool
	// Err joins the errors of every failed strategy.
	Err error
}

type strategy struct {
	name  string
	apply func(path string) (string, error)
}

// Clear removes a lock file, escalating through delete, relax permissions and
// delete, truncate and delete, and finally renaming it to a timestamped
// sidecar. It never panics or returns an error; the result names the strategy
// that worked.
func (m *Manager) Clear(path string) ClearResult {
	return m.clearWith(path, m.strategies())
}

func (m *Manager) clearWith(path string, strategies []strategy) ClearResult {
	result := ClearResult{Path: path}

	_, statErr := os.Lstat(path)
	if errors.Is(statErr, fs.ErrNotExist) {
		result.Strategy = StrategyAbsent
		result.Cleared = true

		return result
	}

	var failures []error

	for _, strat := range strategies {
		stale, err := strat.apply(path)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", strat.name, err))

			continue
		}

		result.Strategy = strat.name
		result.StalePath = stale
		result.Cleared = true

		m.logger.Info("cleared cache lock", "lock", path, "strategy", strat.name)

		return result
	}

	result.Err = errors.Join(failures...)

	m.logger.Warn("could not clear cache lock", "lock", path, "error", result.Err)

	return result
}

func (m *Manager) strategies() []strategy {
	return []strategy{
		{name: StrategyDelete, apply: func(path string) (string, error) {
			return "", os.Remove(path)
		}},
		{name: StrategyChmodDelete, apply: func(path string) (string, error) {
			chmodErr := os.Chmod(path, relaxedLockMode)
			if chmodErr != nil {
				return "", chmodErr
			}

			return "", os.Remove(path)
		}},
		{name: StrategyTruncateDelete, apply: func(path string) (string, error) {
			truncErr := os.Truncate(path, 0)
			if truncErr != nil {
				return "", truncErr
			}

			return "", os.Remove(path)
		}},
		{name: StrategyRename, apply: func(path string) (string, error) {
			stale := filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.stale.%d", lockName, m.now().Unix()))

			return stale, os.Rename(path, stale)
		}},
	}
}
