package analyzer_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/hydraql/internal/analyzer"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", analyzer.Truncate("short", 10))
	assert.Equal(t, "abc...", analyzer.Truncate("abcdef", 3))

	// "é" is two bytes; a cut at byte 2 lands inside it.
	got := analyzer.Truncate("aéb", 2)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "a...", got)

	long := strings.Repeat("日本", 100)
	got = analyzer.Truncate(long, 7)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "日本...", got)
}
