package lockfile

import "errors"

// ErrStrategyFailed is returned by strategies configured to fail.
var ErrStrategyFailed = errors.New("strategy failed")

// ForceClearEscalation runs the real strategy list with the first failing
// steps replaced by failures, exposing the escalation order to tests.
func ForceClearEscalation(m *Manager, path string, failFirst int) ClearResult {
	strategies := m.strategies()

	for idx := 0; idx < failFirst && idx < len(strategies); idx++ {
		strategies[idx].apply = func(string) (string, error) { return "", ErrStrategyFailed }
	}

	return m.clearWith(path, strategies)
}
