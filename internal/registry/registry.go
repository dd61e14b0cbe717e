// Package registry resolves the database of every requested language and
// decides whether it can be scanned.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/hydraql/internal/lang"
	"github.com/Sumatoshi-tech/hydraql/internal/lockfile"
)

// MetadataFile marks the root of a database.
const MetadataFile = "codeql-database.yml"

// Sentinel errors.
var (
	ErrDatabasesUnavailable = errors.New("requested databases are missing or unfinalized")
	ErrSourceRootRequired   = errors.New("automatic database creation requires a source root")
)

// Readiness classifies a database.
type Readiness uint8

// Readiness states.
const (
	Missing Readiness = iota
	Unfinalized
	Malformed
	Empty
	Ready
)

// String returns the state's name.
func (r Readiness) String() string {
	switch r {
	case Missing:
		return "missing"
	case Unfinalized:
		return "unfinalized"
	case Malformed:
		return "malformed"
	case Empty:
		return "empty"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Scannable reports whether work may be scheduled against a database in
// this state. Malformed databases are only warned about.
func (r Readiness) Scannable() bool {
	return r == Ready || r == Malformed
}

// Database is one resolved language database.
type Database struct {
	Language  string
	Root      string
	Readiness Readiness
	// Forced is set when an empty database is scanned on operator override.
	Forced bool
}

// Manager creates and finalizes databases.
type Manager interface {
	Create(ctx context.Context, database, language, sourceRoot string) error
	Finalize(ctx context.Context, database string) error
}

// LockSweeper applies a lock policy to a database root.
type LockSweeper interface {
	Sweep(root string, policy lockfile.Policy) []lockfile.Observation
}

// Options configures resolution.
type Options struct {
	// Root holds one database per language at <Root>/<language>.
	Root      string
	Languages []string

	AutoCreate   bool
	SourceRoot   string
	AutoFinalize bool
	// AllowMissing downgrades missing and unfinalized databases to warnings.
	AllowMissing bool
	// ForceUnready scans databases classified empty.
	ForceUnready bool
	// DryRun resolves without creating or finalizing anything.
	DryRun bool

	LockPolicy lockfile.Policy
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	// Databases lists every requested language in request order.
	Databases   []Database
	Missing     []string
	Unfinalized []string
	Skipped     []string
}

// Lookup returns the scannable database for language.
func (r *Resolution) Lookup(language string) (Database, bool) {
	for _, db := range r.Databases {
		if db.Language == language && db.Readiness.Scannable() {
			return db, true
		}
	}

	return Database{}, false
}

// ReadyLanguages lists the languages that have a scannable database.
func (r *Resolution) ReadyLanguages() []string {
	var out []string

	for _, db := range r.Databases {
		if db.Readiness.Scannable() {
			out = append(out, db.Language)
		}
	}

	return out
}

// Registry resolves databases.
type Registry struct {
	opts    Options
	manager Manager
	locks   LockSweeper
	logger  *slog.Logger
}

// New creates a Registry.
func New(opts Options, manager Manager, locks LockSweeper, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{opts: opts, manager: manager, locks: locks, logger: logger}
}

// Resolve classifies the database of every requested language, creating or
// finalizing them when configured. It returns ErrDatabasesUnavailable, along
// with the partial resolution, when a database is missing or unfinalized and
// AllowMissing is not set.
func (r *Registry) Resolve(ctx context.Context) (*Resolution, error) {
	if r.opts.AutoCreate && r.opts.SourceRoot == "" {
		return nil, ErrSourceRootRequired
	}

	res := &Resolution{}

	r.logger.Info("looking for databases", "path", r.opts.Root)

	for _, language := range lang.Normalize(r.opts.Languages) {
		db := r.resolveOne(ctx, language)

		switch db.Readiness {
		case Missing:
			res.Missing = append(res.Missing, language)
		case Unfinalized:
			res.Unfinalized = append(res.Unfinalized, language)
		case Empty:
			res.Skipped = append(res.Skipped, language)
		case Malformed, Ready:
			r.logger.Info("database found", "language", language, "db", db.Root)
		}

		res.Databases = append(res.Databases, db)
	}

	if (len(res.Missing) > 0 || len(res.Unfinalized) > 0) && !r.opts.AllowMissing {
		return res, fmt.Errorf("%w: missing [%s], unfinalized [%s]",
			ErrDatabasesUnavailable, strings.Join(res.Missing, ", "), strings.Join(res.Unfinalized, ", "))
	}

	for _, language := range res.Missing {
		r.logger.Warn("continuing without database", "language", language, "readiness", Missing)
	}

	for _, language := range res.Unfinalized {
		r.logger.Warn("continuing without database", "language", language, "readiness", Unfinalized)
	}

	return res, nil
}

func (r *Registry) resolveOne(ctx context.Context, language string) Database {
	root := filepath.Join(r.opts.Root, language)
	db := Database{Language: language, Root: root, Readiness: Missing}

	if !HasMetadata(root) {
		r.logger.Warn("missing database", "language", language, "db", root)

		if !r.opts.AutoCreate {
			return db
		}

		if r.opts.DryRun {
			r.logger.Info("dry run: would create database", "language", language, "db", root)

			db.Readiness = Empty

			return db
		}

		r.logger.Info("creating database", "language", language, "db", root)

		createErr := r.manager.Create(ctx, root, language, r.opts.SourceRoot)
		if createErr != nil {
			r.logger.Warn("failed to create database", "language", language, "db", root, "error", createErr)

			return db
		}
	}

	r.locks.Sweep(root, r.opts.LockPolicy)

	if r.opts.AutoFinalize && !r.opts.DryRun {
		r.logger.Info("finalizing database", "language", language, "db", root)

		finalizeErr := r.manager.Finalize(ctx, root)
		if finalizeErr != nil {
			r.logger.Warn("failed to finalize database", "language", language, "db", root, "error", finalizeErr)

			db.Readiness = Unfinalized

			return db
		}
	}

	db.Readiness = Classify(root)

	if !hasSubDatabase(root) {
		r.logger.Warn("database looks unusual, no db-* sub-directories", "language", language, "db", root)
	}

	switch db.Readiness {
	case Empty:
		if r.opts.ForceUnready {
			r.logger.Warn("database appears empty; scanning anyway", "language", language, "db", root)

			db.Readiness = Ready
			db.Forced = true

			return db
		}

		r.logger.Warn("database appears empty; skipping", "language", language, "db", root)
	case Missing, Unfinalized, Ready, Malformed:
	}

	return db
}

// HasMetadata reports whether root holds a database metadata descriptor.
func HasMetadata(root string) bool {
	info, err := os.Stat(filepath.Join(root, MetadataFile))

	return err == nil && info.Mode().IsRegular()
}

// Classify inspects root on disk. Finalization state is not visible on disk,
// so Unfinalized is never returned.
func Classify(root string) Readiness {
	switch {
	case !HasMetadata(root):
		return Missing
	case IsEmpty(root):
		return Empty
	case !hasSubDatabase(root):
		return Malformed
	default:
		return Ready
	}
}

func hasSubDatabase(root string) bool {
	entries, err := os.ReadDir(root)
	if err != nil {
		return false
	}

	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "db-") {
			return true
		}
	}

	return false
}
