package gitpath

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"

	"github.com/aki/arbor/internal/storage"
)

const (
	// DotGit is the name of the per-checkout git entry
	DotGit = ".git"
	// WorktreesDir is the metadata directory name inside the common gitdir
	WorktreesDir = "worktrees"
)

// WorktreePaths is the resolved topology for a path inside a repository.
// Exactly one of Dir and WorktreeDir is the active root for the target.
type WorktreePaths struct {
	Dir            string `json:"dir,omitempty"`
	Gitdir         string `json:"gitdir,omitempty"`
	Worktrees      string `json:"worktrees,omitempty"`
	WorktreeDir    string `json:"worktreeDir,omitempty"`
	WorktreeGitdir string `json:"worktreeGitdir,omitempty"`
	WorktreeLink   string `json:"worktreeLink,omitempty"`
}

// IsLinked reports whether the target belongs to a linked worktree.
func (p WorktreePaths) IsLinked() bool {
	return p.WorktreeGitdir != ""
}

// Root returns the checkout root the target belongs to.
func (p WorktreePaths) Root() string {
	if p.WorktreeDir != "" {
		return p.WorktreeDir
	}
	return p.Dir
}

// ActiveGitdir returns the directory holding HEAD and index for the target.
func (p WorktreePaths) ActiveGitdir() string {
	if p.WorktreeGitdir != "" {
		return p.WorktreeGitdir
	}
	return p.Gitdir
}

// Target names something whose worktree kind is being asked about.
type Target interface {
	isTarget()
}

// PathTarget is any path inside a checkout.
type PathTarget struct {
	Path string
}

// MetafileTarget is the .git entry of a checkout.
type MetafileTarget struct {
	Gitdir string
}

func (PathTarget) isTarget()     {}
func (MetafileTarget) isTarget() {}

// ParseGitdirFile extracts the path from "gitdir: <path>" content. Relative
// paths are returned as written.
func ParseGitdirFile(content []byte) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "gitdir:"); ok {
			rest = strings.TrimSpace(rest)
			if rest == "" {
				return "", false
			}
			return rest, true
		}
	}
	return "", false
}

// MetadataName turns a branch name into its worktrees/<name> directory name.
func MetadataName(branch string) string {
	return strings.ReplaceAll(strings.TrimPrefix(branch, "refs/heads/"), "/", "-")
}

func absPath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func resolveAgainst(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

func readTrimmed(fs storage.Reader, path string) (string, bool) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return "", false
	}
	s := strings.TrimSpace(string(data))
	return s, s != ""
}
