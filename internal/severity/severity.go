// Package severity implements the severity predicate used to filter findings.
//
// Two modes exist. Strict mode accepts a candidate only when it equals the
// filter case-insensitively. Loose mode first maps analyzer-native words onto
// normalized tiers (note → MEDIUM, warning → HIGH, error → CRITICAL) and then
// accepts the candidate when its tier equals the filter or when the raw
// candidate text contains the filter as a substring. Substring containment is
// knowingly imprecise: a filter of "HIGH" also accepts "HIGHLIGHT".
package severity

import "strings"

// Normalized severity tiers.
const (
	TierCritical = "CRITICAL"
	TierHigh     = "HIGH"
	TierMedium   = "MEDIUM"
)

// Analyzer-native severity words.
const (
	nativeError   = "error"
	nativeWarning = "warning"
	nativeNote    = "note"
)

// Matcher decides whether a finding's severity passes the configured filter.
// The zero value has no filter and accepts everything.
type Matcher struct {
	filter string
	strict bool
}

// NewMatcher returns a Matcher for filter. An empty filter disables filtering.
func NewMatcher(filter string, strict bool) Matcher {
	return Matcher{filter: strings.ToUpper(strings.TrimSpace(filter)), strict: strict}
}

// Active reports whether a filter is configured.
func (m Matcher) Active() bool {
	return m.filter != ""
}

// Filter returns the normalized filter value.
func (m Matcher) Filter() string {
	return m.filter
}

// Strict reports whether the matcher runs in strict mode.
func (m Matcher) Strict() bool {
	return m.strict
}

// Accepts reports whether a finding whose severity text is candidate passes
// the filter. Without an active filter every finding passes.
func (m Matcher) Accepts(candidate string) bool {
	if !m.Active() {
		return true
	}

	return m.Matches(candidate)
}

// Matches applies the predicate. An empty candidate never matches.
func (m Matcher) Matches(candidate string) bool {
	cand := strings.ToUpper(strings.TrimSpace(candidate))
	if cand == "" {
		return false
	}

	if m.strict {
		return cand == m.filter
	}

	return Tier(cand) == m.filter || strings.Contains(cand, m.filter)
}

// AcceptsAny reports whether any non-empty candidate passes the filter.
func (m Matcher) AcceptsAny(candidates ...string) bool {
	if !m.Active() {
		return true
	}

	for _, cand := range candidates {
		if cand != "" && m.Matches(cand) {
			return true
		}
	}

	return false
}

// Tier maps an analyzer-native severity word to its normalized tier.
// Unknown words are returned upper-cased.
func Tier(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case nativeError:
		return TierCritical
	case nativeWarning:
		return TierHigh
	case nativeNote:
		return TierMedium
	default:
		return strings.ToUpper(strings.TrimSpace(raw))
	}
}
