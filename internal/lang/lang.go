// Package lang defines the canonical language keys understood by the analyzer
// and the aliases that collapse historically separate front-ends onto them.
package lang

import (
	"slices"
	"strings"
)

// Canonical language keys.
const (
	Java       = "java"
	JavaScript = "javascript"
	Python     = "python"
	CPP        = "cpp"
	Swift      = "swift"
	Ruby       = "ruby"
	Kotlin     = "kotlin"
	TypeScript = "typescript"
)

// aliases maps front-end names onto the database language that serves them.
var aliases = map[string]string{
	TypeScript: JavaScript,
	Kotlin:     Java,
}

// known lists every name accepted in a query import or on the command line,
// aliases included.
var known = []string{Java, JavaScript, Python, CPP, Swift, Ruby, Kotlin, TypeScript}

// Canonical lower-cases name and resolves aliases.
func Canonical(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))

	if target, ok := aliases[key]; ok {
		return target
	}

	return key
}

// IsKnown reports whether name (before aliasing) is a supported language.
func IsKnown(name string) bool {
	return slices.Contains(known, strings.ToLower(strings.TrimSpace(name)))
}

// Known returns the accepted language names in declaration order.
func Known() []string {
	return slices.Clone(known)
}

// ParseList splits a comma separated language list, canonicalizes every entry
// and drops blanks and duplicates while keeping first-seen order.
func ParseList(raw string) []string {
	return Normalize(strings.Split(raw, ","))
}

// Normalize canonicalizes names, dropping blanks and duplicates.
func Normalize(names []string) []string {
	out := make([]string, 0, len(names))

	for _, name := range names {
		key := Canonical(name)
		if key == "" || slices.Contains(out, key) {
			continue
		}

		out = append(out, key)
	}

	return out
}
