// Package failurelog records terminal work item failures in a plain-text,
// append-only file shared by concurrent scan workers.
package failurelog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

const logFileMode = 0o644

// ErrClosed is returned when appending to a closed log.
var ErrClosed = errors.New("failure log is closed")

// Entry describes one terminal failure.
type Entry struct {
	Query      string
	Language   string
	Database   string
	Diagnostic string
}

// Format renders the entry as it appears in the log.
func (e Entry) Format() string {
	diag := strings.TrimRight(e.Diagnostic, "\n")
	if diag == "" {
		diag = "(no diagnostic output)"
	}

	return fmt.Sprintf("FAIL %s on %s (%s):\n%s\n", e.Query, e.Language, e.Database, diag)
}

// Log is an append-only failure log. Each entry is emitted with a single
// write so concurrent appends never interleave.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	count  int
	closed bool
}

// Open truncates or creates the log at path.
func Open(path string) (*Log, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, logFileMode) //nolint:gosec // operator-chosen path
	if err != nil {
		return nil, fmt.Errorf("open failure log: %w", err)
	}

	return &Log{path: path, file: file}, nil
}

// Path returns the file the log writes to.
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry.
func (l *Log) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	_, err := l.file.WriteString(entry.Format())
	if err != nil {
		return fmt.Errorf("append failure log: %w", err)
	}

	l.count++

	return nil
}

// Count returns the number of entries appended since Open.
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Close flushes and closes the file. Closing twice is a no-op.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	return l.file.Close()
}
