package worktree

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aki/arbor/internal/core/gitpath"
	"github.com/aki/arbor/internal/core/refs"
	"github.com/aki/arbor/internal/core/status"
)

// Remove deletes the checkout and metadata of a linked worktree. Without
// force a worktree with uncommitted work is left alone and false is
// returned; with force its branch is deleted as well. The main worktree is
// always refused.
func (m *Manager) Remove(ctx context.Context, wt Worktree, force bool) (bool, error) {
	if wt.Main {
		return false, ErrMainWorktree
	}
	path := filepath.Clean(wt.Path)

	wgd, common, err := m.metadataFor(path)
	if err != nil {
		return false, err
	}

	unlock, err := m.lock(ctx, common)
	if err != nil {
		return false, err
	}
	defer unlock()

	if !force && m.dirty(ctx, path, wgd) {
		m.logger.Info("worktree has changes, not removing", "path", path)
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if m.fs.Exists(path) {
		if err := m.fs.RemoveAll(path); err != nil {
			return false, fmt.Errorf("failed to remove checkout %s: %w", path, err)
		}
		m.logger.Debug("removed checkout", "path", path)
	}
	if err := m.fs.RemoveAll(wgd); err != nil {
		return false, fmt.Errorf("failed to remove metadata %s: %w", wgd, err)
	}
	m.logger.Debug("removed metadata", "path", wgd)

	if force && wt.Ref != "" {
		if err := m.refs.DeleteBranch(ctx, filepath.Dir(common), wt.Ref); err != nil {
			return true, fmt.Errorf("worktree removed but branch %s could not be deleted: %w", wt.Ref, err)
		}
	}

	m.logger.Info("worktree removed", "path", path, "ref", wt.Ref, "force", force)
	return true, nil
}

// metadataFor locates the metadata directory and common gitdir of a linked
// checkout through its .git file.
func (m *Manager) metadataFor(path string) (string, string, error) {
	if m.paths.IsLinkedWorktree(gitpath.MetafileTarget{Gitdir: filepath.Join(path, gitpath.DotGit)}) {
		paths, ok := m.paths.GetWorktreePaths(path)
		if ok && paths.IsLinked() {
			return paths.WorktreeGitdir, paths.Gitdir, nil
		}
	}
	if m.fs.Exists(filepath.Join(path, gitpath.DotGit)) {
		return "", "", ErrMainWorktree
	}
	return "", "", fmt.Errorf("%w: %s (prune recovers metadata of missing checkouts)", ErrNotLinked, path)
}

// dirty reports work that removal would lose: unstaged or staged changes,
// untracked files and conflicts. Without an index, as in detached worktrees,
// only the workdir is compared with HEAD. A status failure counts as dirty.
func (m *Manager) dirty(ctx context.Context, path, wgd string) bool {
	entries, ok, err := m.status.StatusMatrix(ctx, path)
	if err != nil {
		m.logger.Warn("status unavailable, treating worktree as dirty", "path", path, "error", err)
		return true
	}
	if !ok {
		return false
	}
	indexed := m.fs.Exists(filepath.Join(wgd, "index"))
	for _, e := range entries {
		if e.Status == status.StatusUnmerged || e.Matrix[1] != 1 {
			return true
		}
		if indexed && e.Matrix[2] != 1 {
			return true
		}
	}
	return false
}

// Prune removes metadata of linked worktrees whose checkout is gone or whose
// gitdir file is missing or invalid.
func (m *Manager) Prune(ctx context.Context, dir string, opts PruneOptions) ([]Pruned, error) {
	paths, ok := m.paths.GetWorktreePaths(dir)
	if !ok {
		return nil, fmt.Errorf("%w: %s", refs.ErrNotRepository, dir)
	}
	worktrees := filepath.Join(paths.Gitdir, gitpath.WorktreesDir)
	if !m.fs.Exists(worktrees) {
		return nil, nil
	}

	unlock, err := m.lock(ctx, paths.Gitdir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := m.fs.ReadDir(worktrees)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", worktrees, err)
	}

	var pruned []Pruned
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		if !e.IsDir() {
			continue
		}
		wgd := filepath.Join(worktrees, e.Name())
		report := m.inspect(e.Name(), wgd)
		if report.State != LinkGitdirMissing && report.State != LinkCheckoutMissing {
			continue
		}
		if opts.Expire > 0 && !m.olderThan(wgd, opts.Expire) {
			continue
		}

		pruned = append(pruned, Pruned{Name: e.Name(), Gitdir: wgd, Reason: report.Reason})
		if opts.DryRun {
			continue
		}
		if err := m.fs.RemoveAll(wgd); err != nil {
			return pruned, fmt.Errorf("failed to prune %s: %w", wgd, err)
		}
		m.logger.Info("pruned worktree metadata", "name", e.Name(), "reason", report.Reason)
	}

	if !opts.DryRun {
		if rest, err := m.fs.ReadDir(worktrees); err == nil && len(rest) == 0 {
			_ = m.fs.Remove(worktrees)
		}
	}
	return pruned, nil
}

func (m *Manager) olderThan(wgd string, age time.Duration) bool {
	info, err := m.fs.Stat(filepath.Join(wgd, "gitdir"))
	if err != nil {
		info, err = m.fs.Stat(wgd)
		if err != nil {
			return true
		}
	}
	return time.Since(info.ModTime()) > age
}
