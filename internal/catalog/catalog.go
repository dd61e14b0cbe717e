// Package catalog discovers analysis queries and query suites and resolves
// the language each one targets.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/hydraql/internal/lang"
)

// File extensions of discoverable content.
const (
	QueryExt = ".ql"
	SuiteExt = ".qls"
)

// prefixLimit bounds how much of a query file is read for metadata.
const prefixLimit = 8000

var (
	importPattern = regexp.MustCompile(`(?im)^\s*import\s+(java|javascript|python|cpp|swift|ruby|kotlin|typescript)\b`)
	namePattern   = regexp.MustCompile(`(?m)@name\s+(.+?)\s*$`)
)

// ErrNoDirectories is returned when Discover has nothing to search.
var ErrNoDirectories = errors.New("no query directories configured")

// Query is a discovered query or suite.
type Query struct {
	// Path identifies the query.
	Path string
	// Language is the canonical language key the query targets.
	Language string
	// Name is the display name: @name metadata, the suite description, or the file stem.
	Name  string
	Suite bool
}

// Options configures discovery.
type Options struct {
	Dirs []string
	// Languages restricts results to these languages; aliases are resolved.
	Languages []string
	// SuiteOnly ignores individual queries everywhere.
	SuiteOnly bool
}

// Catalog discovers queries.
type Catalog struct {
	opts   Options
	langs  []string
	logger *slog.Logger
}

// New creates a Catalog.
func New(opts Options, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}

	return &Catalog{opts: opts, langs: lang.Normalize(opts.Languages), logger: logger}
}

// Discover walks every configured directory. Within a directory tree that
// holds suites, only suites are collected. Paths are deduplicated and sorted;
// queries whose language cannot be resolved to a requested one are dropped.
func (c *Catalog) Discover() ([]Query, error) {
	if len(c.opts.Dirs) == 0 {
		return nil, ErrNoDirectories
	}

	seen := make(map[string]struct{})

	for _, dir := range c.opts.Dirs {
		paths, err := c.collect(dir)
		if err != nil {
			return nil, err
		}

		for _, path := range paths {
			seen[path] = struct{}{}
		}
	}

	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}

	slices.Sort(paths)

	queries := make([]Query, 0, len(paths))

	for _, path := range paths {
		language, ok := c.InferLanguage(path, c.langs)
		if !ok {
			c.logger.Warn("could not infer language for query", "query", path)

			continue
		}

		queries = append(queries, Query{
			Path:     path,
			Language: language,
			Name:     c.displayName(path),
			Suite:    filepath.Ext(path) == SuiteExt,
		})
	}

	return queries, nil
}

func (c *Catalog) collect(dir string) ([]string, error) {
	info, statErr := os.Stat(dir)
	if statErr != nil || !info.IsDir() {
		c.logger.Warn("query dir does not exist", "path", dir)

		return nil, nil
	}

	var queries, suites []string

	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}

			c.logger.Debug("skipping unreadable path", "path", path, "error", err)

			return nil
		}

		if entry.IsDir() {
			return nil
		}

		switch filepath.Ext(path) {
		case QueryExt:
			queries = append(queries, path)
		case SuiteExt:
			suites = append(suites, path)
		}

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk query dir %s: %w", dir, walkErr)
	}

	if c.opts.SuiteOnly || len(suites) > 0 {
		if len(suites) > 0 {
			c.logger.Debug("preferring suites", "path", dir, "count", len(suites))
		}

		return suites, nil
	}

	return queries, nil
}

// InferLanguage resolves the language of the query at path among requested:
// an import declaration in the file, then a suite's pack reference, then a
// path segment naming a requested language.
func (c *Catalog) InferLanguage(path string, requested []string) (string, bool) {
	wanted := lang.Normalize(requested)

	prefix, readErr := readPrefix(path)
	if readErr != nil {
		c.logger.Debug("cannot read query", "query", path, "error", readErr)
	}

	if match := importPattern.FindSubmatch(prefix); match != nil {
		detected := lang.Canonical(string(match[1]))
		if slices.Contains(wanted, detected) {
			return detected, true
		}
	}

	if filepath.Ext(path) == SuiteExt {
		if detected, ok := suiteLanguage(prefix); ok && slices.Contains(wanted, detected) {
			return detected, true
		}
	}

	segments := strings.Split(filepath.ToSlash(strings.ToLower(path)), "/")

	for _, want := range wanted {
		for _, segment := range segments {
			if segment != "" && lang.IsKnown(segment) && lang.Canonical(segment) == want {
				return want, true
			}
		}
	}

	return "", false
}

func (c *Catalog) displayName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	prefix, err := readPrefix(path)
	if err != nil {
		return stem
	}

	if filepath.Ext(path) == SuiteExt {
		if desc := suiteDescription(prefix); desc != "" {
			return desc
		}

		return stem
	}

	if match := namePattern.FindSubmatch(prefix); match != nil {
		return string(match[1])
	}

	return stem
}

func readPrefix(path string) ([]byte, error) {
	file, err := os.Open(path) //nolint:gosec // discovered under operator-configured dirs
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(io.LimitReader(file, prefixLimit))
}

// NormalizeDirs splits comma separated entries, trims them, expands a
// leading ~ and drops blanks and duplicates.
func NormalizeDirs(dirs []string) []string {
	home, _ := os.UserHomeDir()
	out := make([]string, 0, len(dirs))

	for _, entry := range dirs {
		for _, dir := range strings.Split(entry, ",") {
			dir = strings.TrimSpace(dir)
			if dir == "" {
				continue
			}

			if home != "" && (dir == "~" || strings.HasPrefix(dir, "~/")) {
				dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
			}

			if !slices.Contains(out, dir) {
				out = append(out, dir)
			}
		}
	}

	return out
}
