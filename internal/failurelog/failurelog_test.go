package failurelog_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/hydraql/internal/failurelog"
)

func TestOpen_TruncatesPreviousRun(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "failures.log")
	require.NoError(t, os.WriteFile(path, []byte("stale entry\n"), 0o600))

	log, err := failurelog.Open(path)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestAppend_FormatsEntry(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "failures.log")

	log, err := failurelog.Open(path)
	require.NoError(t, err)

	require.NoError(t, log.Append(failurelog.Entry{
		Query:      "/q/Sqli.ql",
		Language:   "java",
		Database:   "/db/java",
		Diagnostic: "boom\n",
	}))
	require.NoError(t, log.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "FAIL /q/Sqli.ql on java (/db/java):\nboom\n", string(content))
	assert.Equal(t, 1, log.Count())
}

func TestAppend_AfterClose(t *testing.T) {
	t.Parallel()

	log, err := failurelog.Open(filepath.Join(t.TempDir(), "failures.log"))
	require.NoError(t, err)
	require.NoError(t, log.Close())
	require.NoError(t, log.Close())

	require.ErrorIs(t, log.Append(failurelog.Entry{Query: "q"}), failurelog.ErrClosed)
}

func TestAppend_ConcurrentEntriesDoNotInterleave(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "failures.log")

	log, err := failurelog.Open(path)
	require.NoError(t, err)

	const writers = 32

	diag := strings.Repeat("x", 2048)

	var wg sync.WaitGroup

	for idx := range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			appendErr := log.Append(failurelog.Entry{
				Query:      fmt.Sprintf("q%02d", idx),
				Language:   "python",
				Database:   "db",
				Diagnostic: diag,
			})
			assert.NoError(t, appendErr)
		}()
	}

	wg.Wait()
	require.NoError(t, log.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	require.Len(t, lines, 2*writers)

	for idx := 0; idx < len(lines); idx += 2 {
		assert.True(t, strings.HasPrefix(lines[idx], "FAIL q"), lines[idx])
		assert.Equal(t, diag, lines[idx+1])
	}

	assert.Equal(t, writers, log.Count())
}
