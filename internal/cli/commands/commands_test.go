package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aki/arbor/internal/app"
	"github.com/aki/arbor/internal/cli/ui"
	"github.com/aki/arbor/internal/core/config"
	"github.com/aki/arbor/internal/core/logger"
	"github.com/aki/arbor/internal/core/merge"
	"github.com/aki/arbor/internal/core/worktree"
	"github.com/aki/arbor/internal/process"
	"github.com/aki/arbor/internal/storage"
	"github.com/aki/arbor/internal/tests/helpers"
)

type cliFixture struct {
	fs     storage.Storage
	runner *process.FakeRunner
	repo   *helpers.MemRepo
}

// newCLIFixture builds /repo in memory with main checked out and foo one
// commit ahead of it.
func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	fs := storage.Memory()
	repo := helpers.NewMemRepo(t, fs, "/repo")
	tip := repo.Commit("main", "initial", map[string]string{"a.txt": "a\n"})
	repo.SetBranch("foo", tip)
	repo.Commit("foo", "second", map[string]string{"a.txt": "b\n"})
	repo.Checkout("main")

	t.Cleanup(func() { _ = ui.SetGlobalFormatter(ui.FormatPretty) })
	return &cliFixture{fs: fs, runner: process.NewFakeRunner(), repo: repo}
}

func (f *cliFixture) factory(ctx context.Context, dir string, log logger.Logger) (*app.Container, error) {
	if log == nil {
		log = logger.Nop()
	}
	return app.NewContainer(ctx, dir, app.Options{FS: f.fs, Runner: f.runner, Logger: log})
}

// run executes arbor against /repo and returns what it printed to stdout
func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	restore := ui.SetOutput(&out, &errOut)
	defer restore()

	root := NewRootCmd(f.factory)
	root.SetArgs(append([]string{"-C", "/repo"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (f *cliFixture) runJSON(t *testing.T, v interface{}, args ...string) {
	t.Helper()
	out, err := f.run(t, append([]string{"--format", "json"}, args...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestRefCommands(t *testing.T) {
	f := newCLIFixture(t)
	mainTip, _ := f.repo.Tip("main")
	fooTip, _ := f.repo.Tip("foo")

	var got map[string]string
	f.runJSON(t, &got, "ref", "HEAD")
	assert.Equal(t, mainTip.String(), got["oid"])

	out, err := f.run(t, "ref", "foo~1")
	require.NoError(t, err)
	assert.Equal(t, mainTip.String()+"\n", out)

	out, err = f.run(t, "ref", "foo")
	require.NoError(t, err)
	assert.Equal(t, fooTip.String()+"\n", out)

	_, err = f.run(t, "ref", "missing")
	assert.ErrorContains(t, err, "reference not found")

	out, err = f.run(t, "branch", "current")
	require.NoError(t, err)
	assert.Equal(t, "main\n", out)
}

func TestStatusCommand(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "status", "--file", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "unmodified\n", out)

	f.repo.WriteFile("b.txt", "new\n")
	out, err = f.run(t, "status", "--file", "b.txt", "--has", "*added,added")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	var entries []map[string]interface{}
	f.runJSON(t, &entries, "status")
	require.Len(t, entries, 2)
}

func TestWorktreeCommands(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "worktree", "add", "/wt/foo", "foo")
	require.NoError(t, err)
	assert.Contains(t, out, "Worktree created")

	var list []worktree.Worktree
	f.runJSON(t, &list, "worktree", "list")
	require.Len(t, list, 2)
	assert.Equal(t, "/wt/foo", list[1].Path)
	assert.Equal(t, "foo", list[1].Ref)

	_, err = f.run(t, "worktree", "add", "/wt/other", "main")
	assert.ErrorIs(t, err, worktree.ErrBranchCheckedOut)

	require.NoError(t, f.fs.WriteFile("/wt/foo/a.txt", []byte("dirty\n"), 0o644))
	out, err = f.run(t, "worktree", "remove", "/wt/foo")
	require.NoError(t, err)
	assert.Contains(t, out, "--force")
	assert.True(t, f.fs.Exists("/wt/foo"))

	out, err = f.run(t, "worktree", "remove", "--force", "/wt/foo")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed worktree /wt/foo")
	assert.False(t, f.fs.Exists("/wt/foo"))

	_, err = f.run(t, "worktree", "remove", "/repo")
	assert.ErrorIs(t, err, worktree.ErrMainWorktree)
}

func TestWorktreePruneCommand(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "worktree", "add", "/wt/foo", "foo")
	require.NoError(t, err)
	require.NoError(t, f.fs.RemoveAll("/wt/foo"))

	var reports []worktree.LinkReport
	f.runJSON(t, &reports, "worktree", "check")
	require.Len(t, reports, 1)
	assert.Equal(t, worktree.LinkCheckoutMissing, reports[0].State)

	var pruned []worktree.Pruned
	f.runJSON(t, &pruned, "worktree", "prune", "--dry-run")
	require.Len(t, pruned, 1)
	assert.True(t, f.fs.Exists("/repo/.git/worktrees/foo"))

	f.runJSON(t, &pruned, "worktree", "prune", "--expire", "1h")
	assert.Empty(t, pruned)

	f.runJSON(t, &pruned, "worktree", "prune")
	require.Len(t, pruned, 1)
	assert.False(t, f.fs.Exists("/repo/.git/worktrees/foo"))
}

func TestMergeCommands(t *testing.T) {
	f := newCLIFixture(t)

	f.runner.On(process.Result{Stdout: "Merge made by the 'ort' strategy."}, "merge", "main", "foo")
	var res merge.Result
	f.runJSON(t, &res, "merge", "run", "main", "foo")
	assert.Equal(t, merge.StatusClean, res.Status)
	assert.Equal(t, "/repo", res.Root)

	f.runner.On(process.Result{Stderr: "fatal: refusing to merge unrelated histories", ExitCode: 128}, "merge", "main", "foo")
	out, err := f.run(t, "merge", "run", "main", "foo")
	assert.ErrorContains(t, err, "failed")
	assert.Contains(t, out, "unrelated histories")

	out, err = f.run(t, "merge", "abort")
	require.NoError(t, err)
	assert.Contains(t, out, "No merge in progress")

	f.repo.WriteFile("c.txt", "<<<<<<< HEAD\na\n=======\nb\n>>>>>>> foo\n")
	var conflicts []merge.Conflict
	f.runJSON(t, &conflicts, "merge", "conflicts")
	require.Len(t, conflicts, 1)
	assert.Equal(t, "/repo/c.txt", conflicts[0].Path)
	assert.Equal(t, []int{0}, conflicts[0].Conflicts)

	f.runJSON(t, &conflicts, "merge", "conflicts", "a.txt")
	assert.Empty(t, conflicts)

	f.runner.On(process.Result{Stdout: "UU c.txt\n M a.txt\n"}, "status", "--porcelain")
	out, err = f.run(t, "merge", "unmerged", "--name-only")
	require.NoError(t, err)
	assert.Equal(t, "c.txt\n", out)

	var unmerged []merge.FileStatus
	f.runJSON(t, &unmerged, "merge", "unmerged")
	require.Len(t, unmerged, 1)
	assert.Equal(t, "c.txt", unmerged[0].Path)
}

func TestConfigCommands(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote /repo/.arbor/config.yaml")
	assert.True(t, f.fs.Exists("/repo/.arbor/config.yaml"))

	out, err = f.run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	_, err = f.run(t, "config", "set", "prune.expire", "1h")
	require.NoError(t, err)
	_, err = f.run(t, "config", "set", "ignore", "*.gen")
	require.NoError(t, err)

	var cfg config.Config
	f.runJSON(t, &cfg, "config", "show")
	assert.Equal(t, time.Hour, cfg.Prune.Expire)
	assert.Equal(t, []string{"*.gen"}, cfg.Ignore)

	out, err = f.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "expire: 1h0m0s")

	_, err = f.run(t, "config", "set", "bogus", "x")
	assert.ErrorContains(t, err, "unknown config key")

	_, err = f.run(t, "config", "set", "lock.timeout", "soon")
	assert.ErrorContains(t, err, "lock.timeout")

	_, err = f.run(t, "config", "set", "output.format", "xml")
	assert.ErrorContains(t, err, "output.format")
}

func TestConfiguredOutputFormat(t *testing.T) {
	f := newCLIFixture(t)
	require.NoError(t, f.fs.WriteFile("/repo/.arbor/config.yaml", []byte("output:\n  format: json\n"), 0o644))

	out, err := f.run(t, "branch", "current")
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "main", got["branch"])

	out, err = f.run(t, "--format", "pretty", "branch", "current")
	require.NoError(t, err)
	assert.Equal(t, "main\n", out)
}

func TestVersionCommand(t *testing.T) {
	f := newCLIFixture(t)

	var info map[string]string
	f.runJSON(t, &info, "version")
	assert.Equal(t, Version, info["version"])
	assert.NotEmpty(t, info["goVersion"])
}

func TestNotRepository(t *testing.T) {
	f := newCLIFixture(t)
	require.NoError(t, f.fs.MkdirAll("/elsewhere", 0o755))

	root := NewRootCmd(f.factory)
	root.SetArgs([]string{"-C", "/elsewhere", "worktree", "list"})
	restore := ui.SetOutput(&bytes.Buffer{}, &bytes.Buffer{})
	defer restore()
	err := root.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "not a git repository")
}

func TestHooksCommands(t *testing.T) {
	f := newCLIFixture(t)
	require.NoError(t, f.fs.WriteFile("/repo/.arbor/hooks.yaml",
		[]byte("hooks:\n  worktree_add:\n    - name: setup\n      command: make setup\n      on_error: fail\n"), 0o644))
	mainTip, _ := f.repo.Tip("main")

	out, err := f.run(t, "worktree", "add", "/wt/foo", "foo")
	require.NoError(t, err)
	assert.Contains(t, out, "Skipped worktree_add hooks")
	assert.Zero(t, f.runner.CallCount(), "untrusted hooks never run")

	var listed map[string]interface{}
	f.runJSON(t, &listed, "hooks", "list")
	assert.Equal(t, false, listed["trusted"])

	out, err = f.run(t, "hooks", "trust")
	require.NoError(t, err)
	assert.Contains(t, out, "Trusted hooks")

	f.runJSON(t, &listed, "hooks", "list")
	assert.Equal(t, true, listed["trusted"])

	f.runner.On(process.Result{Stdout: "ready"}, "setup")
	_, err = f.run(t, "worktree", "add", "/wt/snap", mainTip.String())
	require.NoError(t, err)
	require.Equal(t, 1, f.runner.CallCount())
	assert.Equal(t, "make", f.runner.Calls[0].Name)
	assert.Equal(t, "/wt/snap", f.runner.Calls[0].Dir)
	assert.Contains(t, f.runner.Calls[0].Env, "ARBOR_WORKTREE_REV="+mainTip.String())

	_, err = f.run(t, "--no-hooks", "worktree", "add", "/wt/snap2", mainTip.String())
	require.NoError(t, err)
	assert.Equal(t, 1, f.runner.CallCount())

	out, err = f.run(t, "hooks", "run", "worktree_add", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "setup")
	assert.Equal(t, 1, f.runner.CallCount())

	f.runner.On(process.Result{ExitCode: 2, Stderr: "no rule"}, "setup")
	_, err = f.run(t, "worktree", "add", "/wt/snap3", mainTip.String())
	assert.ErrorContains(t, err, "a hook failed")
	assert.True(t, f.fs.Exists("/wt/snap3/.git"), "the worktree stays when a post-add hook fails")

	_, err = f.run(t, "hooks", "run", "session_start")
	assert.ErrorContains(t, err, "unknown hook event")
}
