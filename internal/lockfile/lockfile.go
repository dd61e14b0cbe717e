// Package lockfile finds, inspects and clears the cache lock files the
// analyzer leaves inside a database. A lock file's presence alone never
// implies it is stale: locks are only cleared, and owners only signalled,
// when a Policy explicitly asks for it.
package lockfile

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"time"
)

const (
	lockName  = ".lock"
	cacheName = "cache"

	// maxLockRead bounds how much of a lock file is read for pid inspection.
	maxLockRead = 4096
)

var (
	labeledPIDPattern = regexp.MustCompile(`(?i)pid\s*=\s*(\d+)`)
	firstIntPattern   = regexp.MustCompile(`(\d+)`)
)

// Policy selects what a sweep does with each lock it finds.
type Policy struct {
	// Clear removes every lock found.
	Clear bool
	// CheckOwner probes whether the pid recorded in the lock is alive.
	CheckOwner bool
	// KillOwner terminates the pid recorded in the lock.
	KillOwner bool
}

// Forced returns the policy used by the lock-contention recovery path:
// locks are always cleared, owner checks follow p, owners are never killed.
func (p Policy) Forced() Policy {
	return Policy{Clear: true, CheckOwner: p.CheckOwner}
}

// Observation records what a sweep saw and did for one lock file.
type Observation struct {
	Path string
	// PID is the owner process id parsed from the lock, valid when HasPID.
	PID    int
	HasPID bool
	// OwnerChecked is set when the liveness probe ran; OwnerAlive holds its answer.
	OwnerChecked bool
	OwnerAlive   bool
	Terminated   bool
	// Clear is populated when the policy requested clearing.
	Clear *ClearResult
}

// Manager operates on lock files beneath database roots.
type Manager struct {
	logger    *slog.Logger
	now       func() time.Time
	alive     func(pid int) bool
	terminate func(pid int) error
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the clock used for stale sidecar names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithProcessControl overrides the liveness probe and the owner termination.
func WithProcessControl(alive func(pid int) bool, terminate func(pid int) error) Option {
	return func(m *Manager) {
		m.alive = alive
		m.terminate = terminate
	}
}

// NewManager creates a Manager using the platform process probe.
func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		logger:    logger,
		now:       time.Now,
		alive:     processAlive,
		terminate: terminateProcess,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Locate returns every cache lock under root: the direct default/cache/.lock,
// the per sub-database db-*/default/cache/.lock paths, and any other .lock
// whose parent directory is a cache directory. Paths are unique and sorted.
func (m *Manager) Locate(root string) []string {
	seen := make(map[string]struct{})

	add := func(path string) {
		if isRegular(path) {
			seen[path] = struct{}{}
		}
	}

	add(filepath.Join(root, "default", cacheName, lockName))

	nested, globErr := filepath.Glob(filepath.Join(root, "db-*", "default", cacheName, lockName))
	if globErr == nil {
		for _, path := range nested {
			add(path)
		}
	}

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped; locate is best effort.
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}

			return nil
		}

		if !entry.IsDir() && entry.Name() == lockName && filepath.Base(filepath.Dir(path)) == cacheName {
			add(path)
		}

		return nil
	})
	if walkErr != nil {
		m.logger.Debug("lock walk incomplete", "db", root, "error", walkErr)
	}

	locks := make([]string, 0, len(seen))
	for path := range seen {
		locks = append(locks, path)
	}

	slices.Sort(locks)

	return locks
}

// Inspect parses the owner pid from a lock file: a labeled "pid=N" first,
// then the first integer in the content. It reports false when the file is
// unreadable or holds no usable integer.
func (m *Manager) Inspect(path string) (int, bool) {
	content, err := readPrefix(path, maxLockRead)
	if err != nil {
		return 0, false
	}

	for _, pattern := range []*regexp.Regexp{labeledPIDPattern, firstIntPattern} {
		match := pattern.FindSubmatch(content)
		if match == nil {
			continue
		}

		pid, convErr := strconv.Atoi(string(match[1]))
		if convErr != nil || pid <= 0 {
			return 0, false
		}

		return pid, true
	}

	return 0, false
}

// killable rejects init and the current process.
func killable(pid int) bool {
	return pid > 1 && pid != os.Getpid()
}

// IsOwnerAlive probes pid without affecting it.
func (m *Manager) IsOwnerAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	return m.alive(pid)
}

// Sweep locates the locks under root and applies policy to each.
func (m *Manager) Sweep(root string, policy Policy) []Observation {
	locks := m.Locate(root)
	if len(locks) == 0 {
		return nil
	}

	m.logger.Warn("cache lock detected", "db", root, "count", len(locks))

	observations := make([]Observation, 0, len(locks))

	for _, path := range locks {
		obs := Observation{Path: path}
		obs.PID, obs.HasPID = m.Inspect(path)

		m.logger.Info("cache lock", "lock", path, "pid", obs.PID)

		if policy.CheckOwner && obs.HasPID {
			obs.OwnerChecked = true
			obs.OwnerAlive = m.IsOwnerAlive(obs.PID)

			m.logger.Info("cache lock owner", "lock", path, "pid", obs.PID, "running", obs.OwnerAlive)
		}

		if policy.KillOwner && obs.HasPID && !killable(obs.PID) {
			m.logger.Warn("refusing to terminate cache lock owner", "lock", path, "pid", obs.PID)
		} else if policy.KillOwner && obs.HasPID {
			m.logger.Warn("terminating cache lock owner", "lock", path, "pid", obs.PID)

			killErr := m.terminate(obs.PID)
			if killErr != nil {
				m.logger.Warn("failed to terminate lock owner", "pid", obs.PID, "error", killErr)
			} else {
				obs.Terminated = true
			}
		}

		if policy.Clear {
			result := m.Clear(path)
			obs.Clear = &result
		}

		observations = append(observations, obs)
	}

	return observations
}

func isRegular(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}

func readPrefix(path string, limit int64) ([]byte, error) {
	file, err := os.Open(path) //nolint:gosec // lock paths come from Locate
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(io.LimitReader(file, limit))
}
