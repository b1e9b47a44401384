package status

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"

	gitobject "github.com/aki/arbor/internal/core/object"
	"github.com/aki/arbor/internal/core/gitpath"
	"github.com/aki/arbor/internal/core/logger"
	"github.com/aki/arbor/internal/core/refs"
	"github.com/aki/arbor/internal/storage"
)

// Engine computes status matrices. Status lookups never fail: problems are
// logged and reported as absence.
type Engine struct {
	fs     storage.Storage
	paths  *gitpath.Resolver
	refs   *refs.Resolver
	logger logger.Logger
}

// NewEngine creates an Engine
func NewEngine(fs storage.Storage, paths *gitpath.Resolver, refs *refs.Resolver, log logger.Logger) *Engine {
	return &Engine{fs: fs, paths: paths, refs: refs, logger: logger.OrNop(log)}
}

// snapshot is everything known about one checkout
type snapshot struct {
	root      string
	head      map[string]plumbing.Hash
	stage     map[string]plumbing.Hash
	unmerged  map[string]bool
	workdir   map[string]plumbing.Hash
	ignored   map[string]bool
	ignoreDir map[string]bool
}

// StatusMatrix computes entries for the checkout containing dir, limited to
// the given path prefixes relative to the checkout root. The bool is false
// when dir is not under version control.
func (e *Engine) StatusMatrix(ctx context.Context, dir string, filepaths ...string) ([]Entry, bool, error) {
	paths, ok := e.paths.GetWorktreePaths(dir)
	if !ok {
		return nil, false, nil
	}
	snap, err := e.snapshot(ctx, paths)
	if err != nil {
		return nil, true, err
	}
	return snap.entries(filepaths), true, nil
}

func (e *Engine) snapshot(ctx context.Context, paths gitpath.WorktreePaths) (*snapshot, error) {
	snap := &snapshot{
		root:      paths.Root(),
		head:      make(map[string]plumbing.Hash),
		stage:     make(map[string]plumbing.Hash),
		unmerged:  make(map[string]bool),
		workdir:   make(map[string]plumbing.Hash),
		ignored:   make(map[string]bool),
		ignoreDir: make(map[string]bool),
	}

	if err := e.readHead(ctx, paths, snap); err != nil {
		return nil, err
	}

	idx, err := gitobject.ReadIndex(e.fs, filepath.Join(paths.ActiveGitdir(), "index"))
	if err != nil {
		return nil, err
	}
	for _, entry := range idx.Entries {
		if entry.Stage != 0 {
			snap.unmerged[entry.Name] = true
			continue
		}
		snap.stage[entry.Name] = entry.Hash
	}

	if err := e.readWorkdir(ctx, paths, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (e *Engine) readHead(ctx context.Context, paths gitpath.WorktreePaths, snap *snapshot) error {
	h, ok := e.refs.ResolveIn(paths.Gitdir, paths.ActiveGitdir(), "HEAD")
	if !ok {
		// unborn branch: empty HEAD tree
		return nil
	}
	repo, err := refs.OpenRepository(e.fs.Billy(), paths.Gitdir)
	if err != nil {
		return err
	}
	commit, err := repo.CommitObject(h)
	if err != nil {
		return fmt.Errorf("failed to read HEAD commit %s: %w", h, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("failed to read tree of %s: %w", h, err)
	}
	return tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap.head[f.Name] = f.Hash
		return nil
	})
}

// Matcher returns the ignore matcher of a checkout: every .gitignore below
// root plus info/exclude of the common gitdir, plus any extra patterns.
func Matcher(fs storage.Storage, root, gitdir string, extra ...gitignore.Pattern) gitignore.Matcher {
	var patterns []gitignore.Pattern
	if data, err := fs.ReadFile(filepath.Join(gitdir, "info", "exclude")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimRight(line, "\r")
			if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
				continue
			}
			patterns = append(patterns, gitignore.ParsePattern(line, nil))
		}
	}
	if chroot, err := fs.Billy().Chroot(root); err == nil {
		if ps, err := gitignore.ReadPatterns(chroot, nil); err == nil {
			patterns = append(patterns, ps...)
		}
	}
	patterns = append(patterns, extra...)
	return gitignore.NewMatcher(patterns)
}

func (e *Engine) readWorkdir(ctx context.Context, paths gitpath.WorktreePaths, snap *snapshot) error {
	matcher := Matcher(e.fs, snap.root, paths.Gitdir)

	err := storage.Walk(e.fs, snap.root, func(path string, info os.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(snap.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		parts := strings.Split(rel, "/")

		if info.Name() == gitpath.DotGit {
			if info.IsDir() {
				return storage.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			// nested checkouts belong to someone else
			if e.fs.Exists(filepath.Join(path, gitpath.DotGit)) {
				return storage.SkipDir
			}
			if matcher.Match(parts, true) && !snap.tracksUnder(rel) {
				snap.ignoreDir[rel] = true
				return storage.SkipDir
			}
			return nil
		}

		_, tracked := snap.stage[rel]
		_, inHead := snap.head[rel]
		if !tracked && !inHead && !snap.unmerged[rel] && matcher.Match(parts, false) {
			snap.ignored[rel] = true
			return nil
		}

		data, err := e.workdirBlob(path, info)
		if err != nil {
			return err
		}
		snap.workdir[rel] = plumbing.ComputeHash(plumbing.BlobObject, data)
		return nil
	})
	if err != nil && !errors.Is(err, storage.SkipDir) {
		return err
	}
	return nil
}

// workdirBlob returns the blob content git would store for path: the link
// target for a symlink, the file content otherwise.
func (e *Engine) workdirBlob(path string, info os.FileInfo) ([]byte, error) {
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := e.fs.Readlink(path)
		if err != nil {
			return nil, err
		}
		return []byte(filepath.ToSlash(target)), nil
	}
	data, err := e.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (s *snapshot) tracksUnder(dir string) bool {
	prefix := dir + "/"
	for p := range s.stage {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	for p := range s.head {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (s *snapshot) isIgnored(rel string) bool {
	if s.ignored[rel] {
		return true
	}
	for dir := range s.ignoreDir {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	return false
}

func matchesPrefix(rel string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		p = strings.Trim(filepath.ToSlash(p), "/")
		if p == "" || p == "." || rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

func (s *snapshot) entries(prefixes []string) []Entry {
	all := make(map[string]bool)
	for p := range s.head {
		all[p] = true
	}
	for p := range s.stage {
		all[p] = true
	}
	for p := range s.unmerged {
		all[p] = true
	}
	for p := range s.workdir {
		all[p] = true
	}

	entries := make([]Entry, 0, len(all))
	for p := range all {
		if !matchesPrefix(p, prefixes) {
			continue
		}
		entries = append(entries, s.entry(p))
	}
	return entries
}

func (s *snapshot) entry(p string) Entry {
	var m MatrixStatus
	headID, inHead := s.head[p]
	workID, inWork := s.workdir[p]
	stageID, inStage := s.stage[p]

	if inHead {
		m[0] = 1
	}
	switch {
	case !inWork:
		m[1] = 0
	case inHead && workID == headID:
		m[1] = 1
	default:
		m[1] = 2
	}
	switch {
	case !inStage:
		m[2] = 0
	case inHead && stageID == headID:
		m[2] = 1
	case inWork && stageID == workID:
		m[2] = 2
	default:
		m[2] = 3
	}

	e := Entry{Path: p, Matrix: m}
	if s.unmerged[p] {
		e.Status = StatusUnmerged
	} else if st, ok := MatrixToStatus(m); ok {
		e.Status = st
	}
	return e
}
