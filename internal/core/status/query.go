package status

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/aki/arbor/internal/storage"
)

// GetStatus classifies path. A file yields its own status; a directory is
// modified when any entry below it has unstaged changes, else unmodified.
// Paths outside version control, and failures, report false.
func (e *Engine) GetStatus(ctx context.Context, path string) (GitStatus, bool) {
	path = filepath.Clean(path)
	paths, ok := e.paths.GetWorktreePaths(path)
	if !ok {
		return "", false
	}
	root := paths.Root()
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)

	snap, err := e.snapshot(ctx, paths)
	if err != nil {
		e.logger.Warn("status unavailable", "path", path, "error", err)
		return "", false
	}

	info, statErr := e.fs.Lstat(path)
	if rel == "." || (statErr == nil && info.IsDir()) {
		prefix := []string{rel}
		if rel == "." {
			prefix = nil
		}
		for _, entry := range snap.entries(prefix) {
			if entry.Unstaged() {
				return StatusModified, true
			}
		}
		return StatusUnmodified, true
	}

	if _, tracked := snap.stage[rel]; !tracked && snap.isIgnored(rel) {
		return StatusIgnored, true
	}
	for _, entry := range snap.entries([]string{rel}) {
		if entry.Path == rel {
			if entry.Status == "" {
				return "", false
			}
			return entry.Status, true
		}
	}
	if statErr != nil && !storage.IsNotExist(statErr) {
		return "", false
	}
	return StatusAbsent, true
}

// HasStatus reports whether any entry at or below path has one of filters.
func (e *Engine) HasStatus(ctx context.Context, path string, filters ...GitStatus) bool {
	wanted := make(map[GitStatus]bool, len(filters))
	for _, f := range filters {
		wanted[f] = true
	}

	paths, ok := e.paths.GetWorktreePaths(path)
	if !ok {
		return false
	}
	rel, err := filepath.Rel(paths.Root(), filepath.Clean(path))
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}

	var prefixes []string
	if rel != "." {
		prefixes = []string{filepath.ToSlash(rel)}
	}
	entries, _, err := e.StatusMatrix(ctx, path, prefixes...)
	if err != nil {
		e.logger.Warn("status unavailable", "path", path, "error", err)
		return false
	}
	for _, entry := range entries {
		if wanted[entry.Status] {
			return true
		}
	}
	return false
}
