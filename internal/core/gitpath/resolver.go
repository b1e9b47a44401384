package gitpath

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"

	"github.com/aki/arbor/internal/storage"
)

// Resolver answers topology questions. It never writes and never fails:
// anything it cannot resolve is reported as absent.
type Resolver struct {
	fs storage.Reader
}

// NewResolver creates a Resolver over fs.
func NewResolver(fs storage.Reader) *Resolver {
	return &Resolver{fs: fs}
}

// GetRoot walks upward from path to the nearest directory containing a .git
// entry.
func (r *Resolver) GetRoot(path string) (string, bool) {
	dir := absPath(path)
	for {
		if r.fs.Exists(filepath.Join(dir, DotGit)) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// IsLinkedWorktree reports whether target's .git entry is a regular file.
func (r *Resolver) IsLinkedWorktree(target Target) bool {
	var dotgit string
	switch t := target.(type) {
	case PathTarget:
		root, ok := r.GetRoot(t.Path)
		if !ok {
			return false
		}
		dotgit = filepath.Join(root, DotGit)
	case MetafileTarget:
		dotgit = absPath(t.Gitdir)
	default:
		return false
	}

	info, err := r.fs.Stat(dotgit)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// GetWorktreePaths resolves the full topology for path.
func (r *Resolver) GetWorktreePaths(path string) (WorktreePaths, bool) {
	target := absPath(path)
	root, ok := r.GetRoot(target)
	if !ok {
		return WorktreePaths{}, false
	}

	dotgit := filepath.Join(root, DotGit)
	info, err := r.fs.Stat(dotgit)
	if err != nil {
		return WorktreePaths{}, false
	}

	if info.IsDir() {
		return r.mainPaths(root, dotgit, target), true
	}
	return r.linkedPaths(root, dotgit)
}

func (r *Resolver) mainPaths(root, gitdir, target string) WorktreePaths {
	paths := WorktreePaths{Dir: root, Gitdir: gitdir}
	worktrees := filepath.Join(gitdir, WorktreesDir)
	if r.fs.Exists(worktrees) {
		paths.Worktrees = worktrees
	}

	// a target inside .git/worktrees/<name> resolves to that linked checkout
	rel, err := filepath.Rel(gitdir, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return paths
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 || parts[0] != WorktreesDir || paths.Worktrees == "" {
		return paths
	}

	paths.WorktreeGitdir = filepath.Join(worktrees, parts[1])
	if link, ok := readTrimmed(r.fs, filepath.Join(paths.WorktreeGitdir, "gitdir")); ok {
		link = resolveAgainst(paths.WorktreeGitdir, link)
		paths.WorktreeLink = link
		paths.WorktreeDir = filepath.Dir(link)
	}
	return paths
}

func (r *Resolver) linkedPaths(root, dotgit string) (WorktreePaths, bool) {
	data, err := r.fs.ReadFile(dotgit)
	if err != nil {
		return WorktreePaths{}, false
	}
	gd, ok := ParseGitdirFile(data)
	if !ok {
		return WorktreePaths{}, false
	}
	gd = resolveAgainst(root, gd)

	common := filepath.Dir(filepath.Dir(gd))
	if cd, ok := readTrimmed(r.fs, filepath.Join(gd, "commondir")); ok {
		common = resolveAgainst(gd, cd)
	}

	return WorktreePaths{
		Dir:            filepath.Dir(common),
		Gitdir:         common,
		Worktrees:      filepath.Join(common, WorktreesDir),
		WorktreeDir:    root,
		WorktreeGitdir: gd,
		WorktreeLink:   dotgit,
	}, true
}

// GetBranchRoot returns the checkout where branch lives: the linked worktree
// holding it, or dir itself.
func (r *Resolver) GetBranchRoot(dir, branch string) (string, bool) {
	paths, ok := r.GetWorktreePaths(dir)
	if !ok {
		return "", false
	}
	branch = strings.TrimPrefix(branch, "refs/heads/")
	if !r.HasLocalBranch(paths.Gitdir, branch) {
		return "", false
	}

	if paths.Worktrees != "" {
		entries, err := r.fs.ReadDir(paths.Worktrees)
		if err == nil {
			for _, e := range entries {
				if !e.IsDir() {
					continue
				}
				wgd := filepath.Join(paths.Worktrees, e.Name())
				if e.Name() != MetadataName(branch) && !r.headIsBranch(wgd, branch) {
					continue
				}
				if link, ok := readTrimmed(r.fs, filepath.Join(wgd, "gitdir")); ok {
					wtDir := filepath.Dir(resolveAgainst(wgd, link))
					if r.fs.Exists(wtDir) {
						return wtDir, true
					}
				}
			}
		}
	}
	return absPath(dir), true
}

func (r *Resolver) headIsBranch(gitdir, branch string) bool {
	head, ok := readTrimmed(r.fs, filepath.Join(gitdir, "HEAD"))
	return ok && head == "ref: refs/heads/"+branch
}

// HasLocalBranch reports whether refs/heads/<branch> exists as a loose or
// packed ref in the common gitdir.
func (r *Resolver) HasLocalBranch(gitdir, branch string) bool {
	name := "refs/heads/" + strings.TrimPrefix(branch, "refs/heads/")
	if r.fs.Exists(filepath.Join(gitdir, filepath.FromSlash(name))) {
		return true
	}
	_, ok := ReadPackedRefs(r.fs, gitdir)[name]
	return ok
}

// ReadPackedRefs parses <gitdir>/packed-refs into name -> id. Peeled lines are
// skipped.
func ReadPackedRefs(fs storage.Reader, gitdir string) map[string]string {
	refs := make(map[string]string)
	data, err := fs.ReadFile(filepath.Join(gitdir, "packed-refs"))
	if err != nil {
		return refs
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		id, name, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		refs[strings.TrimSpace(name)] = id
	}
	return refs
}
