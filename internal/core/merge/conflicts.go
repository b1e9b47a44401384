package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aki/arbor/internal/core/gitpath"
	"github.com/aki/arbor/internal/core/status"
	"github.com/aki/arbor/internal/storage"
)

var markerBlock = regexp.MustCompile(`(?s)<<<<<<<.+?=======.+?>>>>>>>`)

// FindConflicts returns the byte offset of every conflict block in content
func FindConflicts(content []byte) []int {
	offsets := []int{}
	for _, loc := range markerBlock.FindAllIndex(content, -1) {
		offsets = append(offsets, loc[0])
	}
	return offsets
}

// CheckFilepath scans one file for conflict blocks
func (m *Manager) CheckFilepath(path string) (Conflict, error) {
	data, err := m.fs.ReadFile(path)
	if err != nil {
		return Conflict{Path: path}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Conflict{Path: path, Conflicts: FindConflicts(data)}, nil
}

// CheckProject scans every file under root that is not ignored and returns
// the files containing conflict blocks, in path order.
func (m *Manager) CheckProject(ctx context.Context, root string) ([]Conflict, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	gitdir := ""
	if paths, ok := m.paths.GetWorktreePaths(root); ok {
		gitdir = paths.Gitdir
	}
	matcher := status.Matcher(m.fs, root, gitdir, m.ignore...)

	conflicts := []Conflict{}
	err = storage.Walk(m.fs, root, func(path string, info os.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.Name() == gitpath.DotGit {
			if info.IsDir() {
				return storage.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if matcher.Match(parts, info.IsDir()) {
			if info.IsDir() {
				return storage.SkipDir
			}
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if info.IsDir() {
			// nested checkouts are scanned on their own
			if m.fs.Exists(filepath.Join(path, gitpath.DotGit)) {
				return storage.SkipDir
			}
			return nil
		}

		c, err := m.CheckFilepath(path)
		if err != nil {
			m.logger.Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}
		if len(c.Conflicts) > 0 {
			conflicts = append(conflicts, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Debug("scanned for conflicts", "root", root, "files", len(conflicts))
	return conflicts, nil
}
