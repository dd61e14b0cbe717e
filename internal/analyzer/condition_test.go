package analyzer_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/hydraql/internal/analyzer"
)

func TestClassifyDiagnostic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want analyzer.Condition
	}{
		{"needs finalization", "A fatal error occurred: database needs to be finalized before running queries", analyzer.ConditionNeedsFinalization},
		{"cache locked", "The cache directory is already locked by another running process", analyzer.ConditionCacheLocked},
		{"overlapping lock", "java.nio.channels.OverlappingFileLockException", analyzer.ConditionCacheLocked},
		{"other", "Query compilation failed", analyzer.ConditionOther},
		{
			"both",
			"needs to be finalized; cache directory is already locked",
			analyzer.ConditionNeedsFinalization | analyzer.ConditionCacheLocked,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, analyzer.ClassifyDiagnostic(tc.text))
		})
	}
}

func TestCondition_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "other", analyzer.ConditionOther.String())
	assert.Equal(t, "cache-locked", analyzer.ConditionCacheLocked.String())
	assert.Equal(t, "needs-finalization+cache-locked",
		(analyzer.ConditionNeedsFinalization | analyzer.ConditionCacheLocked).String())
}

func TestClassify_WrappedFailure(t *testing.T) {
	t.Parallel()

	failure := &analyzer.Failure{Op: "analyze", ExitCode: 2, Diagnostic: "cache directory is already locked"}
	wrapped := fmt.Errorf("attempt 1: %w", failure)

	assert.True(t, analyzer.Classify(wrapped).Has(analyzer.ConditionCacheLocked))
	assert.Equal(t, analyzer.ConditionOther, analyzer.Classify(errors.New("boom")))
	assert.Equal(t, "cache directory is already locked", analyzer.Diagnostic(wrapped))
	assert.Equal(t, "boom", analyzer.Diagnostic(errors.New("boom")))
	assert.Empty(t, analyzer.Diagnostic(nil))
}
