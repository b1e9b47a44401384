package storage

import (
	"os"
	"path/filepath"
	"sort"
)

// SkipDir may be returned by a WalkFunc to skip the current directory.
var SkipDir = filepath.SkipDir

// WalkFunc is called for every entry below the walk root, root excluded.
// Symlinks are reported as such and never followed.
type WalkFunc func(path string, info os.FileInfo) error

// Walk visits the tree under root in lexical order.
func Walk(s Reader, root string, fn WalkFunc) error {
	entries, err := s.ReadDir(root)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		info := entry
		if entry.IsDir() || entry.Mode()&os.ModeSymlink != 0 {
			if li, err := s.Lstat(path); err == nil {
				info = li
			}
		}
		if err := fn(path, info); err != nil {
			if err == SkipDir && info.IsDir() {
				continue
			}
			return err
		}
		if info.IsDir() {
			if err := Walk(s, path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
