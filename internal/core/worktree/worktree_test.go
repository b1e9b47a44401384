package worktree

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aki/arbor/internal/core/gitpath"
	"github.com/aki/arbor/internal/core/logger"
	gitobject "github.com/aki/arbor/internal/core/object"
	"github.com/aki/arbor/internal/core/refs"
	"github.com/aki/arbor/internal/core/status"
	"github.com/aki/arbor/internal/filemanager"
	"github.com/aki/arbor/internal/storage"
	"github.com/aki/arbor/internal/tests/helpers"
)

type fixture struct {
	mgr   *Manager
	repo  *helpers.MemRepo
	paths *gitpath.Resolver
	fs    storage.Storage
	tip   plumbing.Hash
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := storage.Memory()
	repo := helpers.NewMemRepo(t, fs, "/repo")
	tip := repo.Commit("main", "initial", map[string]string{
		"README.md":   "# repo\n",
		"src/main.go": "package main\n",
	})
	repo.SetBranch("foo", tip)
	repo.SetBranch("branchX", tip)
	repo.Checkout("main")

	paths := gitpath.NewResolver(fs)
	rr := refs.NewResolver(fs, paths, logger.Nop())
	st := status.NewEngine(fs, paths, rr, logger.Nop())
	mgr := NewManager(fs, paths, rr, st, filemanager.NewLocker(time.Second, false), logger.Nop())

	return &fixture{mgr: mgr, repo: repo, paths: paths, fs: fs, tip: tip}
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	data, err := f.fs.ReadFile(path)
	require.NoError(t, err, path)
	return string(data)
}

func TestAdd_Linkage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wt, err := f.mgr.Add(ctx, "/repo", "/wt/branchX", "branchX")
	require.NoError(t, err)
	assert.Equal(t, "/wt/branchX", wt.Path)
	assert.Equal(t, "branchX", wt.Ref)
	assert.Equal(t, f.tip.String(), wt.Rev)
	assert.False(t, wt.Detached)

	meta := "/repo/.git/worktrees/branchX"
	assert.Equal(t, "ref: refs/heads/branchX\n", f.read(t, meta+"/HEAD"))
	assert.Equal(t, f.tip.String()+"\n", f.read(t, meta+"/ORIG_HEAD"))
	assert.Equal(t, "../..\n", f.read(t, meta+"/commondir"))
	assert.Equal(t, "/wt/branchX/.git\n", f.read(t, meta+"/gitdir"))
	assert.Equal(t, "gitdir: /repo/.git/worktrees/branchX\n", f.read(t, "/wt/branchX/.git"))

	assert.Equal(t, "# repo\n", f.read(t, "/wt/branchX/README.md"))
	assert.Equal(t, "package main\n", f.read(t, "/wt/branchX/src/main.go"))

	idx, err := gitobject.ReadIndex(f.fs, meta+"/index")
	require.NoError(t, err)
	require.Len(t, idx.Entries, 2)
	assert.Equal(t, "README.md", idx.Entries[0].Name)
	assert.Equal(t, "src/main.go", idx.Entries[1].Name)

	paths, ok := f.paths.GetWorktreePaths("/wt/branchX/src")
	require.True(t, ok)
	assert.Equal(t, "/wt/branchX", paths.WorktreeDir)
	assert.Equal(t, meta, paths.WorktreeGitdir)
	assert.Equal(t, "/repo/.git", paths.Gitdir)

	fromMeta, ok := f.paths.GetWorktreePaths(meta)
	require.True(t, ok)
	assert.Equal(t, paths, fromMeta)

	got, ok := f.mgr.status.GetStatus(ctx, "/wt/branchX")
	require.True(t, ok)
	assert.Equal(t, status.StatusUnmodified, got)

	branch, ok := f.mgr.refs.CurrentBranch("/wt/branchX")
	require.True(t, ok)
	assert.Equal(t, "branchX", branch)
}

func TestAdd_Detached(t *testing.T) {
	f := newFixture(t)

	wt, err := f.mgr.Add(context.Background(), "/repo", "/wt/snapshot", f.tip.String())
	require.NoError(t, err)
	assert.True(t, wt.Detached)
	assert.Empty(t, wt.Ref)
	assert.Equal(t, "snapshot", wt.Name)

	meta := "/repo/.git/worktrees/snapshot"
	assert.Equal(t, f.tip.String()+"\n", f.read(t, meta+"/HEAD"))
	assert.False(t, f.fs.Exists(meta+"/index"), "detached worktrees carry no index")

	_, ok := f.mgr.refs.CurrentBranch("/wt/snapshot")
	assert.False(t, ok)

	removed, err := f.mgr.Remove(context.Background(), *wt, false)
	require.NoError(t, err)
	assert.True(t, removed, "unchanged detached checkout is clean")
}

func TestAdd_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown branch", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.Add(ctx, "/repo", "/wt/x", "nope")
		assert.ErrorIs(t, err, ErrInvalidCommitish)
		assert.False(t, f.fs.Exists("/wt/x"))
	})

	t.Run("branch checked out in main", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.Add(ctx, "/repo", "/wt/main", "main")
		assert.ErrorIs(t, err, ErrBranchCheckedOut)
	})

	t.Run("branch checked out in another worktree", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.Add(ctx, "/repo", "/wt/foo", "foo")
		require.NoError(t, err)
		_, err = f.mgr.Add(ctx, "/repo", "/wt/foo2", "foo")
		assert.ErrorIs(t, err, ErrBranchCheckedOut)
	})

	t.Run("non-empty target", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.fs.WriteFile("/wt/foo/existing.txt", []byte("x"), 0o644))
		_, err := f.mgr.Add(ctx, "/repo", "/wt/foo", "foo")
		assert.ErrorIs(t, err, ErrWorktreeExists)
		assert.Equal(t, "x", f.read(t, "/wt/foo/existing.txt"))
	})

	t.Run("not a repository", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.Add(ctx, "/nowhere", "/wt/foo", "foo")
		assert.ErrorIs(t, err, refs.ErrNotRepository)
	})
}

func TestAdd_RollsBack(t *testing.T) {
	t.Run("missing commit object", func(t *testing.T) {
		f := newFixture(t)
		ghost := "0123456789abcdef0123456789abcdef01234567"

		_, err := f.mgr.Add(context.Background(), "/repo", "/wt/ghost", ghost)
		require.ErrorIs(t, err, ErrInvalidCommitish)
		assert.False(t, f.fs.Exists("/wt/ghost"))
		assert.False(t, f.fs.Exists("/repo/.git/worktrees"))
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.mgr.Add(ctx, "/repo", "/wt/foo", "foo")
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, f.fs.Exists("/wt/foo"))
		assert.False(t, f.fs.Exists("/repo/.git/worktrees/foo"))
	})

	t.Run("empty existing directory is emptied again", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.fs.MkdirAll("/wt/ghost", 0o755))

		_, err := f.mgr.Add(context.Background(), "/repo", "/wt/ghost", "0123456789abcdef0123456789abcdef01234567")
		require.Error(t, err)
		entries, err := f.fs.ReadDir("/wt/ghost")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Add(ctx, "/repo", "/wt/foo", "foo")
	require.NoError(t, err)

	list, ok := f.mgr.List(ctx, "/repo")
	require.True(t, ok)
	require.Len(t, list, 2)

	assert.True(t, list[0].Main)
	assert.Equal(t, "/repo", list[0].Path)
	assert.Equal(t, "main", list[0].Ref)
	assert.Equal(t, f.tip.String(), list[0].Rev)
	assert.False(t, list[0].Bare)

	assert.False(t, list[1].Main)
	assert.Equal(t, "/wt/foo", list[1].Path)
	assert.Equal(t, "foo", list[1].Ref)
	assert.Equal(t, "foo", list[1].Name)
	assert.Equal(t, f.tip.String(), list[1].Rev)
	assert.Empty(t, list[1].Prunable)

	again, ok := f.mgr.List(ctx, "/wt/foo/src")
	require.True(t, ok)
	assert.Equal(t, list, again, "ids are stable and listing works from any checkout")

	_, ok = f.mgr.List(ctx, "/nowhere")
	assert.False(t, ok)

	assert.Equal(t, list[1], f.mgr.Lookup(ctx, "/wt/foo/"))
	assert.Equal(t, list[0], f.mgr.Lookup(ctx, "/repo"))
	assert.Equal(t, Worktree{Path: "/wt/gone"}, f.mgr.Lookup(ctx, "/wt/gone"))
}

func TestRemove_DirtyGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wt, err := f.mgr.Add(ctx, "/repo", "/wt/foo", "foo")
	require.NoError(t, err)
	require.NoError(t, f.fs.WriteFile("/wt/foo/README.md", []byte("# changed\n"), 0o644))

	removed, err := f.mgr.Remove(ctx, *wt, false)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.True(t, f.fs.Exists("/wt/foo/README.md"))
	assert.True(t, f.fs.Exists("/repo/.git/worktrees/foo"))
	assert.True(t, f.mgr.refs.BranchExists("/repo", "foo"), "the branch survives a refused removal")

	removed, err = f.mgr.Remove(ctx, *wt, true)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, f.fs.Exists("/wt/foo"))
	assert.False(t, f.fs.Exists("/repo/.git/worktrees/foo"))
	assert.False(t, f.mgr.refs.BranchExists("/repo", "foo"), "force deletes the branch")

	list, ok := f.mgr.List(ctx, "/repo")
	require.True(t, ok)
	assert.Len(t, list, 1)
}

func TestRemove_RefusesUncommittedWork(t *testing.T) {
	ctx := context.Background()
	writeStaged := func(t *testing.T, f *fixture) {
		data := []byte("# staged\n")
		require.NoError(t, f.fs.WriteFile("/wt/foo/README.md", data, 0o644))
		stageWorktreeFile(t, f, "README.md", data)
	}
	tests := []struct {
		name   string
		mutate func(t *testing.T, f *fixture)
	}{
		{"staged change", writeStaged},
		{"untracked file", func(t *testing.T, f *fixture) {
			require.NoError(t, f.fs.WriteFile("/wt/foo/new.txt", []byte("new\n"), 0o644))
		}},
		{"deleted file", func(t *testing.T, f *fixture) {
			require.NoError(t, f.fs.Remove("/wt/foo/README.md"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			wt, err := f.mgr.Add(ctx, "/repo", "/wt/foo", "foo")
			require.NoError(t, err)
			tt.mutate(t, f)

			removed, err := f.mgr.Remove(ctx, *wt, false)
			require.NoError(t, err)
			assert.False(t, removed)
			assert.True(t, f.fs.Exists("/wt/foo/.git"))
			assert.True(t, f.fs.Exists("/repo/.git/worktrees/foo"))
			assert.True(t, f.mgr.refs.BranchExists("/repo", "foo"))
		})
	}
}

// stageWorktreeFile records data for rel in the linked worktree foo's index.
func stageWorktreeFile(t *testing.T, f *fixture, rel string, data []byte) {
	t.Helper()
	path := "/repo/.git/worktrees/foo/index"
	idx, err := gitobject.ReadIndex(f.fs, path)
	require.NoError(t, err)
	h := f.repo.StoreBlob(string(data))
	for _, e := range idx.Entries {
		if e.Name == rel {
			e.Hash = h
			e.Size = uint32(len(data))
		}
	}
	require.NoError(t, gitobject.WriteIndex(f.fs, path, idx.Entries))
}

func TestRemove_CleanKeepsBranch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wt, err := f.mgr.Add(ctx, "/repo", "/wt/foo", "foo")
	require.NoError(t, err)

	removed, err := f.mgr.Remove(ctx, *wt, false)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, f.fs.Exists("/wt/foo"))
	assert.True(t, f.mgr.refs.BranchExists("/repo", "foo"))
}

func TestRemove_MainRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, ok := f.mgr.List(ctx, "/repo")
	require.True(t, ok)

	_, err := f.mgr.Remove(ctx, list[0], true)
	assert.ErrorIs(t, err, ErrMainWorktree)

	_, err = f.mgr.Remove(ctx, Worktree{Path: "/repo"}, true)
	assert.ErrorIs(t, err, ErrMainWorktree)
	assert.True(t, f.fs.Exists("/repo/.git/HEAD"))

	_, err = f.mgr.Remove(ctx, Worktree{Path: "/wt/none"}, true)
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pruned, err := f.mgr.Prune(ctx, "/repo", PruneOptions{})
	require.NoError(t, err)
	assert.Nil(t, pruned, "no linked worktrees is a no-op")

	_, err = f.mgr.Add(ctx, "/repo", "/wt/foo", "foo")
	require.NoError(t, err)
	_, err = f.mgr.Add(ctx, "/repo", "/wt/branchX", "branchX")
	require.NoError(t, err)
	require.NoError(t, f.fs.RemoveAll("/wt/foo"))

	list, _ := f.mgr.List(ctx, "/repo")
	require.Len(t, list, 3)
	assert.Equal(t, ReasonCheckoutMissing, list[2].Prunable)
	assert.Empty(t, list[1].Prunable)

	pruned, err = f.mgr.Prune(ctx, "/repo", PruneOptions{Expire: 24 * time.Hour})
	require.NoError(t, err)
	assert.Empty(t, pruned, "fresh metadata is kept when an expiry is set")

	pruned, err = f.mgr.Prune(ctx, "/repo", PruneOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.Equal(t, "foo", pruned[0].Name)
	assert.True(t, f.fs.Exists("/repo/.git/worktrees/foo"))

	pruned, err = f.mgr.Prune(ctx, "/repo", PruneOptions{})
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.False(t, f.fs.Exists("/repo/.git/worktrees/foo"))
	assert.True(t, f.fs.Exists("/repo/.git/worktrees/branchX"))

	require.NoError(t, f.fs.Remove("/repo/.git/worktrees/branchX/gitdir"))
	pruned, err = f.mgr.Prune(ctx, "/repo", PruneOptions{})
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.Equal(t, ReasonGitdirMissing, pruned[0].Reason)
	assert.False(t, f.fs.Exists("/repo/.git/worktrees"), "empty metadata directory is removed")
}

func TestCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Add(ctx, "/repo", "/wt/foo", "foo")
	require.NoError(t, err)

	reports, ok := f.mgr.Check(ctx, "/repo")
	require.True(t, ok)
	require.Len(t, reports, 1)
	assert.Equal(t, LinkConsistent, reports[0].State)
	assert.Equal(t, "/wt/foo", reports[0].Checkout)

	require.NoError(t, f.fs.WriteFile("/wt/foo/.git", []byte("gitdir: /other/.git/worktrees/foo\n"), 0o644))
	reports, _ = f.mgr.Check(ctx, "/repo")
	assert.Equal(t, LinkBroken, reports[0].State)
	assert.Equal(t, ReasonNoBacklink, reports[0].Reason)

	list, _ := f.mgr.List(ctx, "/repo")
	assert.Empty(t, list[1].Prunable, "a broken backlink is reported, not pruned")
}

func TestAdd_ModesAndSymlinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.Commit("tools", "modes", map[string]string{
		"README.md": "# repo\n",
		"run.sh":    helpers.Exec("#!/bin/sh\n"),
		"sub/x.txt": "x\n",
		"link-dir":  helpers.Link("sub"),
		"link-file": helpers.Link("README.md"),
	})

	_, err := f.mgr.Add(ctx, "/repo", "/wt/tools", "tools")
	require.NoError(t, err)

	info, err := f.fs.Stat("/wt/tools/run.sh")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	info, err = f.fs.Stat("/wt/tools/README.md")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	for link, target := range map[string]string{"link-dir": "sub", "link-file": "README.md"} {
		info, err := f.fs.Lstat("/wt/tools/" + link)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode()&os.ModeSymlink, link)
		got, err := f.fs.Readlink("/wt/tools/" + link)
		require.NoError(t, err)
		assert.Equal(t, target, got)
	}

	idx, err := gitobject.ReadIndex(f.fs, "/repo/.git/worktrees/tools/index")
	require.NoError(t, err)
	modes := map[string]filemode.FileMode{}
	for _, e := range idx.Entries {
		modes[e.Name] = e.Mode
	}
	assert.Equal(t, filemode.Executable, modes["run.sh"])
	assert.Equal(t, filemode.Symlink, modes["link-dir"])

	st := status.NewEngine(f.fs, f.paths, refs.NewResolver(f.fs, f.paths, logger.Nop()), logger.Nop())
	entries, ok, err := st.StatusMatrix(ctx, "/wt/tools")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, entries, 5)
	for _, e := range entries {
		assert.Equal(t, status.StatusUnmodified, e.Status, e.Path)
	}
}

func TestAdd_GitCompatible(t *testing.T) {
	dir := helpers.CreateGitRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "x.txt"), []byte("x\n"), 0o644))
	require.NoError(t, os.Symlink("sub", filepath.Join(dir, "link-dir")))
	require.NoError(t, os.Symlink("README.md", filepath.Join(dir, "link-file")))
	helpers.RunGit(t, dir, "add", ".")
	helpers.RunGit(t, dir, "commit", "-m", "modes and links")
	helpers.RunGit(t, dir, "branch", "feature")
	parent, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	target := filepath.Join(parent, "feature")

	fs := storage.OS()
	paths := gitpath.NewResolver(fs)
	rr := refs.NewResolver(fs, paths, logger.Nop())
	st := status.NewEngine(fs, paths, rr, logger.Nop())
	mgr := NewManager(fs, paths, rr, st, filemanager.NewLocker(time.Second, true), logger.Nop())
	ctx := context.Background()

	got, ok := st.GetStatus(ctx, dir)
	require.True(t, ok, "symlinks must not break status of the main checkout")
	assert.Equal(t, status.StatusUnmodified, got)
	got, ok = st.GetStatus(ctx, filepath.Join(dir, "link-file"))
	require.True(t, ok)
	assert.Equal(t, status.StatusUnmodified, got)

	_, err = mgr.Add(ctx, dir, target, "feature")
	require.NoError(t, err)

	out := helpers.RunGit(t, dir, "worktree", "list", "--porcelain")
	assert.Contains(t, out, "worktree "+target)
	assert.Contains(t, out, "branch refs/heads/feature")

	info, err := os.Stat(filepath.Join(target, "run.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100, "run.sh keeps its executable bit")
	info, err = os.Lstat(filepath.Join(target, "link-dir"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)

	assert.Empty(t, strings.TrimSpace(helpers.RunGit(t, target, "status", "--porcelain")))

	got, ok = st.GetStatus(ctx, target)
	require.True(t, ok)
	assert.Equal(t, status.StatusUnmodified, got)
}
