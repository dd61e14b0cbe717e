package analyzer

import (
	"errors"
	"strings"
)

// Diagnostic markers the analyzer prints on its error stream.
const (
	markerNeedsFinalization = "needs to be finalized"
	markerCacheLocked       = "cache directory is already locked"
	markerOverlappingLock   = "OverlappingFileLockException"
	markerAlreadyFinalized  = "already finalized"
)

// Condition is a set of retry-relevant conditions found in analyzer diagnostics.
type Condition uint8

// ConditionOther means no retry-eligible condition was recognized.
const ConditionOther Condition = 0

const (
	// ConditionNeedsFinalization means the database must be finalized before analysis.
	ConditionNeedsFinalization Condition = 1 << iota
	// ConditionCacheLocked means the database cache is held by a lock file.
	ConditionCacheLocked
)

// Has reports whether c contains flag.
func (c Condition) Has(flag Condition) bool {
	return c&flag != 0
}

func (c Condition) String() string {
	var parts []string

	if c.Has(ConditionNeedsFinalization) {
		parts = append(parts, "needs-finalization")
	}

	if c.Has(ConditionCacheLocked) {
		parts = append(parts, "cache-locked")
	}

	if len(parts) == 0 {
		return "other"
	}

	return strings.Join(parts, "+")
}

// ClassifyDiagnostic inspects analyzer error-stream text.
func ClassifyDiagnostic(text string) Condition {
	cond := ConditionOther

	if strings.Contains(text, markerNeedsFinalization) {
		cond |= ConditionNeedsFinalization
	}

	if strings.Contains(text, markerCacheLocked) || strings.Contains(text, markerOverlappingLock) {
		cond |= ConditionCacheLocked
	}

	return cond
}

// Classify extracts the diagnostic from a *Failure anywhere in err's chain.
// Errors that carry no diagnostic classify as ConditionOther.
func Classify(err error) Condition {
	var failure *Failure
	if !errors.As(err, &failure) {
		return ConditionOther
	}

	return ClassifyDiagnostic(failure.Diagnostic)
}

// Diagnostic returns the captured error-stream text of a *Failure in err's
// chain, or err's message when there is none.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}

	var failure *Failure
	if errors.As(err, &failure) && failure.Diagnostic != "" {
		return failure.Diagnostic
	}

	return err.Error()
}
