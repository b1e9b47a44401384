package refs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/aki/arbor/internal/core/gitpath"
	"github.com/aki/arbor/internal/core/logger"
	"github.com/aki/arbor/internal/storage"
)

const maxSymrefDepth = 5

var (
	// ErrRefNotFound is returned when a name does not resolve to an id
	ErrRefNotFound = errors.New("reference not found")
	// ErrNotRepository is returned for paths outside any repository
	ErrNotRepository = errors.New("not a git repository")

	ancestryPattern = regexp.MustCompile(`^(.+)~(\d*)$`)
)

// pseudo refs that live in the per-worktree gitdir
var perWorktreeRefs = map[string]bool{
	"HEAD":             true,
	"ORIG_HEAD":        true,
	"MERGE_HEAD":       true,
	"FETCH_HEAD":       true,
	"CHERRY_PICK_HEAD": true,
}

// ResolveOptions selects what ResolveRef resolves
type ResolveOptions struct {
	Dir string
	Ref string
	// Depth walks that many first-log entries back, like Ref~Depth
	Depth int
}

// Commit is the summary of a commit returned by history queries
type Commit struct {
	Oid     string `json:"oid"`
	Message string `json:"message"`
	Author  string `json:"author"`
	When    string `json:"when"`
}

// Resolver reads refs from loose files and packed-refs.
type Resolver struct {
	fs     storage.Storage
	paths  *gitpath.Resolver
	logger logger.Logger
}

// NewResolver creates a Resolver
func NewResolver(fs storage.Storage, paths *gitpath.Resolver, log logger.Logger) *Resolver {
	return &Resolver{fs: fs, paths: paths, logger: logger.OrNop(log)}
}

// ResolveRef resolves opts.Ref for the checkout containing opts.Dir. For a
// linked worktree HEAD is that worktree's own HEAD. The bool is false when
// Dir is not under version control or the name does not resolve.
func (r *Resolver) ResolveRef(ctx context.Context, opts ResolveOptions) (plumbing.Hash, bool, error) {
	paths, ok := r.paths.GetWorktreePaths(opts.Dir)
	if !ok {
		return plumbing.ZeroHash, false, nil
	}

	name, depth := opts.Ref, opts.Depth
	if name == "" {
		name = "HEAD"
	}
	for m := ancestryPattern.FindStringSubmatch(name); m != nil; m = ancestryPattern.FindStringSubmatch(name) {
		// a bare ~ means ~1
		n := 1
		if m[2] != "" {
			v, err := strconv.Atoi(m[2])
			if err != nil {
				return plumbing.ZeroHash, false, nil
			}
			n = v
		}
		if n > math.MaxInt-depth {
			return plumbing.ZeroHash, false, nil
		}
		name, depth = m[1], depth+n
	}

	h, ok := r.ResolveIn(paths.Gitdir, paths.ActiveGitdir(), name)
	if !ok || depth == 0 {
		return h, ok, nil
	}
	return r.walkBack(ctx, paths.Gitdir, h, depth)
}

// walkBack returns the oldest of the first depth+1 log entries from h.
func (r *Resolver) walkBack(ctx context.Context, gitdir string, h plumbing.Hash, depth int) (plumbing.Hash, bool, error) {
	repo, err := OpenRepository(r.fs.Billy(), gitdir)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	iter, err := repo.Log(&git.LogOptions{From: h})
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("failed to walk history from %s: %w", h, err)
	}
	defer iter.Close()

	oldest, count := plumbing.ZeroHash, 0
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		oldest = c.Hash
		count++
		if count > depth {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return plumbing.ZeroHash, false, fmt.Errorf("failed to walk history from %s: %w", h, err)
	}
	return oldest, count > 0, nil
}

// ResolveIn resolves name against a common gitdir and the active
// per-worktree gitdir without any path discovery.
func (r *Resolver) ResolveIn(common, active, name string) (plumbing.Hash, bool) {
	return r.resolve(common, active, name, 0)
}

func (r *Resolver) resolve(common, active, name string, depth int) (plumbing.Hash, bool) {
	if depth > maxSymrefDepth {
		r.logger.Warn("symbolic ref loop", "ref", name, "gitdir", common)
		return plumbing.ZeroHash, false
	}
	if plumbing.IsHash(name) {
		return plumbing.NewHash(name), true
	}

	for _, candidate := range candidates(name) {
		content, ok := r.readRef(common, active, candidate)
		if !ok {
			continue
		}
		if target, sym := strings.CutPrefix(content, "ref:"); sym {
			return r.resolve(common, active, strings.TrimSpace(target), depth+1)
		}
		if plumbing.IsHash(content) {
			return plumbing.NewHash(content), true
		}
		r.logger.Warn("ignoring malformed ref", "ref", candidate, "content", content)
	}
	return plumbing.ZeroHash, false
}

// candidates lists full names tried for a short name, in git's order.
func candidates(name string) []string {
	if perWorktreeRefs[name] || strings.HasPrefix(name, "refs/") {
		return []string{name}
	}
	return []string{
		"refs/" + name,
		"refs/tags/" + name,
		"refs/heads/" + name,
		"refs/remotes/" + name,
		"refs/remotes/" + name + "/HEAD",
	}
}

// readRef returns the trimmed content of a full ref name.
func (r *Resolver) readRef(common, active, name string) (string, bool) {
	dir := common
	if perWorktreeRefs[name] {
		dir = active
	}
	data, err := r.fs.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return s, true
		}
	}
	if perWorktreeRefs[name] {
		return "", false
	}
	id, ok := gitpath.ReadPackedRefs(r.fs, common)[name]
	return id, ok
}

// ReadSymbolicRef returns the target of a symbolic ref such as HEAD, or false
// for direct refs and missing files.
func (r *Resolver) ReadSymbolicRef(common, active, name string) (string, bool) {
	content, ok := r.readRef(common, active, name)
	if !ok {
		return "", false
	}
	target, sym := strings.CutPrefix(content, "ref:")
	if !sym {
		return "", false
	}
	return strings.TrimSpace(target), true
}

// CurrentBranch returns the branch HEAD points at. Detached HEAD and paths
// outside a repository report false.
func (r *Resolver) CurrentBranch(dir string) (string, bool) {
	paths, ok := r.paths.GetWorktreePaths(dir)
	if !ok {
		return "", false
	}
	target, ok := r.ReadSymbolicRef(paths.Gitdir, paths.ActiveGitdir(), "HEAD")
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(target, "refs/heads/"), strings.HasPrefix(target, "refs/heads/")
}

// DefaultBranch returns the branch refs/remotes/origin/HEAD points at.
func (r *Resolver) DefaultBranch(dir string) (string, bool) {
	paths, ok := r.paths.GetWorktreePaths(dir)
	if !ok {
		return "", false
	}
	target, ok := r.ReadSymbolicRef(paths.Gitdir, paths.Gitdir, "refs/remotes/origin/HEAD")
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(target, "refs/remotes/origin/"), true
}

// ListBranches returns local branch names, or remote-tracking names such as
// "origin/main" when remote is set, sorted.
func (r *Resolver) ListBranches(dir string, remote bool) ([]string, bool) {
	paths, ok := r.paths.GetWorktreePaths(dir)
	if !ok {
		return nil, false
	}

	prefix := "refs/heads/"
	if remote {
		prefix = "refs/remotes/"
	}

	seen := make(map[string]bool)
	base := filepath.Join(paths.Gitdir, filepath.FromSlash(prefix))
	_ = storage.Walk(r.fs, base, func(path string, info os.FileInfo) error {
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err == nil {
			seen[filepath.ToSlash(rel)] = true
		}
		return nil
	})
	for name := range gitpath.ReadPackedRefs(r.fs, paths.Gitdir) {
		if short, ok := strings.CutPrefix(name, prefix); ok {
			seen[short] = true
		}
	}

	branches := make([]string, 0, len(seen))
	for name := range seen {
		if remote && strings.HasSuffix(name, "/HEAD") {
			continue
		}
		branches = append(branches, name)
	}
	sort.Strings(branches)
	return branches, true
}

// BranchExists reports whether dir's repository has local branch.
func (r *Resolver) BranchExists(dir, branch string) bool {
	paths, ok := r.paths.GetWorktreePaths(dir)
	if !ok {
		return false
	}
	return r.paths.HasLocalBranch(paths.Gitdir, branch)
}
