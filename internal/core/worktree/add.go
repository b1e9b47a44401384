package worktree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/aki/arbor/internal/core/gitpath"
	gitobject "github.com/aki/arbor/internal/core/object"
	"github.com/aki/arbor/internal/core/refs"
)

// rollback undoes created paths in reverse order. clear names a directory
// that existed empty before and must be emptied again.
type rollback struct {
	m       *Manager
	created []string
	clear   string
	done    bool
}

func (r *rollback) track(path string) {
	r.created = append(r.created, path)
}

func (r *rollback) run() {
	if r.done {
		return
	}
	for i := len(r.created) - 1; i >= 0; i-- {
		if err := r.m.fs.RemoveAll(r.created[i]); err != nil {
			r.m.logger.Warn("rollback failed", "path", r.created[i], "error", err)
		}
	}
	if r.clear == "" {
		return
	}
	entries, err := r.m.fs.ReadDir(r.clear)
	if err != nil {
		return
	}
	for _, e := range entries {
		_ = r.m.fs.RemoveAll(filepath.Join(r.clear, e.Name()))
	}
}

// Add checks out commitish into dir as a linked worktree of repo. commitish
// is a local branch name or a full commit id; the latter gives a detached
// worktree whose metadata is named after dir. On any failure everything
// created is removed again.
func (m *Manager) Add(ctx context.Context, repo, dir, commitish string) (*Worktree, error) {
	paths, ok := m.paths.GetWorktreePaths(repo)
	if !ok {
		return nil, fmt.Errorf("%w: %s", refs.ErrNotRepository, repo)
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	unlock, err := m.lock(ctx, paths.Gitdir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	wt := &Worktree{ID: worktreeID(dir), Path: dir}
	var oid plumbing.Hash
	switch {
	case plumbing.IsHash(commitish):
		oid = plumbing.NewHash(commitish)
		wt.Detached = true
		wt.Name = gitpath.MetadataName(filepath.Base(dir))
	case m.paths.HasLocalBranch(paths.Gitdir, commitish):
		branch := gitpath.MetadataName(commitish)
		wt.Ref = trimHeads(commitish)
		wt.Name = branch
		h, ok := m.refs.ResolveIn(paths.Gitdir, paths.Gitdir, "refs/heads/"+wt.Ref)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCommitish, commitish)
		}
		oid = h
		if where, busy := m.checkedOutAt(paths, wt.Ref); busy {
			return nil, fmt.Errorf("%w: %s at %s", ErrBranchCheckedOut, wt.Ref, where)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommitish, commitish)
	}
	wt.Rev = oid.String()

	wgd := filepath.Join(paths.Gitdir, gitpath.WorktreesDir, wt.Name)
	if m.fs.Exists(wgd) {
		return nil, fmt.Errorf("%w: metadata %s", ErrWorktreeExists, wgd)
	}
	if entries, err := m.fs.ReadDir(dir); err == nil && len(entries) > 0 {
		return nil, fmt.Errorf("%w: %s is not empty", ErrWorktreeExists, dir)
	}

	rb := &rollback{m: m}
	defer rb.run()

	if !m.fs.Exists(dir) {
		if err := m.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		rb.track(dir)
	} else {
		rb.clear = dir
	}

	entries, err := m.checkout(ctx, paths.Gitdir, oid, dir)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	worktrees := filepath.Dir(wgd)
	if !m.fs.Exists(worktrees) {
		rb.track(worktrees)
	}
	if err := m.fs.MkdirAll(wgd, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", wgd, err)
	}
	rb.track(wgd)

	head := oid.String()
	if !wt.Detached {
		head = "ref: refs/heads/" + wt.Ref
	}
	dotgit := filepath.Join(dir, gitpath.DotGit)
	files := []struct{ name, content string }{
		{"HEAD", head + "\n"},
		{"ORIG_HEAD", oid.String() + "\n"},
		{"commondir", "../..\n"},
		{"gitdir", dotgit + "\n"},
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := m.fs.WriteFile(filepath.Join(wgd, f.name), []byte(f.content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		m.logger.Debug("wrote worktree metadata", "file", filepath.Join(wgd, f.name))
	}
	if !wt.Detached {
		if err := gitobject.WriteIndex(m.fs, filepath.Join(wgd, "index"), entries); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.fs.WriteFile(dotgit, []byte("gitdir: "+wgd+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", dotgit, err)
	}

	rb.done = true
	m.logger.Info("worktree added", "path", dir, "name", wt.Name, "ref", wt.Ref, "rev", wt.Rev)
	return wt, nil
}

func trimHeads(branch string) string {
	return strings.TrimPrefix(branch, "refs/heads/")
}

// checkedOutAt reports the checkout already holding branch, if any.
func (m *Manager) checkedOutAt(paths gitpath.WorktreePaths, branch string) (string, bool) {
	if target, ok := m.refs.ReadSymbolicRef(paths.Gitdir, paths.Gitdir, "HEAD"); ok && target == "refs/heads/"+branch {
		return paths.Dir, true
	}
	for _, wt := range m.linked(paths) {
		if wt.Ref == branch && wt.Prunable == "" {
			return wt.Path, true
		}
	}
	return "", false
}

// checkout writes the tree of oid below dir and returns the index entries
// describing what was written.
func (m *Manager) checkout(ctx context.Context, gitdir string, oid plumbing.Hash, dir string) ([]*index.Entry, error) {
	repo, err := refs.OpenRepository(m.fs.Billy(), gitdir)
	if err != nil {
		return nil, err
	}
	commit, err := repo.CommitObject(oid)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCommitish, oid, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree of %s: %w", oid, err)
	}

	var entries []*index.Entry
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Mode == filemode.Submodule {
			return nil
		}
		target := filepath.Join(dir, filepath.FromSlash(f.Name))

		r, err := f.Reader()
		if err != nil {
			return fmt.Errorf("failed to open blob %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			return fmt.Errorf("failed to read blob %s: %w", f.Name, err)
		}

		switch f.Mode {
		case filemode.Symlink:
			if err := m.fs.Symlink(string(data), target); err != nil {
				return err
			}
		case filemode.Executable:
			if err := m.fs.WriteFile(target, data, 0o755); err != nil {
				return fmt.Errorf("failed to write %s: %w", target, err)
			}
		default:
			if err := m.fs.WriteFile(target, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", target, err)
			}
		}

		entry := &index.Entry{
			Name: f.Name,
			Hash: f.Hash,
			Mode: f.Mode,
			Size: uint32(len(data)),
		}
		if info, err := m.fs.Lstat(target); err == nil {
			entry.ModifiedAt = info.ModTime()
			entry.CreatedAt = info.ModTime()
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to check out %s: %w", oid, err)
	}
	m.logger.Debug("checked out tree", "rev", oid.String(), "dir", dir, "files", len(entries))
	return entries, nil
}
