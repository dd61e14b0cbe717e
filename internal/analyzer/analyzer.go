// Package analyzer wraps the external analysis engine's command-line contract:
// database creation, finalization, query pack installation and analysis.
package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/farcloser/primordium/fault"
)

// DefaultBinary is the analyzer executable looked up in PATH.
const DefaultBinary = "codeql"

// waitDelay bounds how long output pipes may stay open after the process is killed.
const waitDelay = 5 * time.Second

// maxLoggedDiagnostic bounds the diagnostic text emitted in debug logs.
const maxLoggedDiagnostic = 800

// Failure describes a non-zero analyzer exit.
type Failure struct {
	// Op names the subcommand that failed (analyze, finalize, create, pack-install).
	Op string
	// ExitCode is the process exit status, or -1 when the process did not exit normally.
	ExitCode int
	// Diagnostic is the text the analyzer wrote to its error stream.
	Diagnostic string

	err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed (exit %d): %v", f.Op, f.ExitCode, f.err)
}

func (f *Failure) Unwrap() error {
	return f.err
}

// AnalyzeRequest is one analysis invocation.
type AnalyzeRequest struct {
	Database string
	Query    string
	// Format is the analyzer's own output format name.
	Format string
	Output string
}

// Options configures the CLI wrapper.
type Options struct {
	// Binary is the analyzer executable name or path. Empty uses DefaultBinary.
	Binary string
	// Timeout bounds a single invocation. Zero disables the bound.
	Timeout time.Duration
	Logger  *slog.Logger
}

// CLI invokes the analyzer as a child process.
type CLI struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a CLI analyzer wrapper.
func New(opts Options) *CLI {
	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CLI{binary: binary, timeout: opts.Timeout, logger: logger}
}

// Available reports the resolved path of the analyzer binary.
func (c *CLI) Available() (string, bool) {
	path, err := exec.LookPath(c.binary)

	return path, err == nil
}

// Analyze runs a query or suite against a database, writing results to req.Output.
func (c *CLI) Analyze(ctx context.Context, req AnalyzeRequest) error {
	return c.run(ctx, "analyze",
		"database", "analyze", req.Database,
		"--format", req.Format,
		"--output", req.Output,
		req.Query,
	)
}

// Finalize finalizes a database. A database that is already finalized is not an error.
func (c *CLI) Finalize(ctx context.Context, database string) error {
	err := c.run(ctx, "finalize", "database", "finalize", database)
	if err == nil {
		return nil
	}

	var failure *Failure
	if errors.As(err, &failure) && strings.Contains(failure.Diagnostic, markerAlreadyFinalized) {
		return nil
	}

	return err
}

// Create builds a database for language from the sources under sourceRoot.
func (c *CLI) Create(ctx context.Context, database, language, sourceRoot string) error {
	return c.run(ctx, "create",
		"database", "create", database,
		"--language="+language,
		"--source-root", sourceRoot,
	)
}

// InstallPacks installs query pack dependencies for the current directory.
func (c *CLI) InstallPacks(ctx context.Context) error {
	return c.run(ctx, "pack-install", "pack", "install")
}

func (c *CLI) run(ctx context.Context, op string, args ...string) error {
	path, found := c.Available()
	if !found {
		return fmt.Errorf("%w: %s", fault.ErrMissingRequirements, c.binary)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.DebugContext(ctx, "analyzer command", "op", op, "cmd", path+" "+strings.Join(args, " "))

	//nolint:gosec // the analyzer binary and its arguments come from operator configuration
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = io.Discard
	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr == nil {
		return nil
	}

	failure := &Failure{Op: op, ExitCode: -1, Diagnostic: stderr.String()}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		failure.ExitCode = exitErr.ExitCode()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		failure.err = fmt.Errorf("%w: after %v", fault.ErrTimeout, c.timeout)
	} else {
		failure.err = fmt.Errorf("%w: %w", fault.ErrCommandFailure, runErr)
	}

	c.logger.DebugContext(ctx, "analyzer command failed",
		"op", op, "exit", failure.ExitCode, "stderr", truncate(failure.Diagnostic, maxLoggedDiagnostic))

	return failure
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}

	return text[:cut] + "..."
}
