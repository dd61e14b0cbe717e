package registry

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// emptyThreshold is the number of payload files at or below which a database
// counts as empty.
const emptyThreshold = 50

// housekeeping lists the subtrees, relative to a database or to one of its
// db-* sub-databases, that never hold payload.
var housekeeping = []string{"default/cache", "logs", "results", "working", "diagnostic"}

// IsEmpty walks root, skipping housekeeping subtrees, and reports whether at
// most emptyThreshold files remain. The walk stops as soon as the threshold
// is exceeded.
func IsEmpty(root string) bool {
	count := 0

	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if entry != nil && entry.IsDir() && path != root {
				return fs.SkipDir
			}

			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}

		if entry.IsDir() {
			if isHousekeeping(filepath.ToSlash(rel)) {
				return fs.SkipDir
			}

			return nil
		}

		count++
		if count > emptyThreshold {
			return fs.SkipAll
		}

		return nil
	})
	return count <= emptyThreshold
}

func isHousekeeping(rel string) bool {
	if slices.Contains(housekeeping, rel) {
		return true
	}

	first, rest, nested := strings.Cut(rel, "/")

	return nested && strings.HasPrefix(first, "db-") && slices.Contains(housekeeping, rest)
}
