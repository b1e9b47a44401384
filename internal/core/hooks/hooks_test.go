package hooks_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aki/arbor/internal/core/hooks"
	"github.com/aki/arbor/internal/core/logger"
	"github.com/aki/arbor/internal/process"
	"github.com/aki/arbor/internal/storage"
)

const configDir = "/repo/.arbor"

func writeConfig(t *testing.T, fs storage.Storage, content string) {
	t.Helper()
	require.NoError(t, fs.WriteFile(filepath.Join(configDir, hooks.HooksConfigFile), []byte(content), 0o644))
}

func TestLoadConfig(t *testing.T) {
	fs := storage.Memory()

	t.Run("missing file is empty", func(t *testing.T) {
		cfg, err := hooks.LoadConfig(fs, configDir)
		require.NoError(t, err)
		assert.True(t, cfg.IsEmpty())
		assert.Nil(t, cfg.GetHooksForEvent(hooks.EventWorktreeAdd))
	})

	t.Run("applies defaults", func(t *testing.T) {
		writeConfig(t, fs, "hooks:\n  worktree_add:\n    - name: setup\n      command: make setup\n")
		cfg, err := hooks.LoadConfig(fs, configDir)
		require.NoError(t, err)
		got := cfg.GetHooksForEvent(hooks.EventWorktreeAdd)
		require.Len(t, got, 1)
		assert.Equal(t, hooks.ErrorStrategyWarn, got[0].OnError)
		assert.False(t, cfg.IsEmpty())
	})

	for name, content := range map[string]string{
		"unknown event":  "hooks:\n  session_start:\n    - name: x\n      command: true\n",
		"no command":     "hooks:\n  worktree_add:\n    - name: x\n",
		"bad timeout":    "hooks:\n  worktree_add:\n    - name: x\n      command: true\n      timeout: soon\n",
		"bad strategy":   "hooks:\n  worktree_add:\n    - name: x\n      command: true\n      on_error: panic\n",
		"malformed yaml": "hooks: [",
	} {
		t.Run(name, func(t *testing.T) {
			writeConfig(t, fs, content)
			_, err := hooks.LoadConfig(fs, configDir)
			assert.Error(t, err)
		})
	}
}

func TestSaveConfig(t *testing.T) {
	fs := storage.Memory()
	cfg := &hooks.Config{Hooks: map[string][]hooks.Hook{
		"worktree_remove": {{Name: "cleanup", Command: "make clean", OnError: hooks.ErrorStrategyIgnore}},
	}}
	require.NoError(t, hooks.SaveConfig(fs, configDir, cfg))

	loaded, err := hooks.LoadConfig(fs, configDir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	bad := &hooks.Config{Hooks: map[string][]hooks.Hook{"nope": {{Name: "x", Command: "true"}}}}
	assert.Error(t, hooks.SaveConfig(fs, configDir, bad))
}

func TestExecutor_Trust(t *testing.T) {
	fs := storage.Memory()
	runner := process.NewFakeRunner().On(process.Result{}, "setup")
	ex := hooks.NewExecutor(fs, configDir, runner, logger.Nop())
	ctx := context.Background()
	vars := hooks.Vars{RepoRoot: "/repo", Dir: "/wt/foo", Path: "/wt/foo", Branch: "foo"}

	results, err := ex.Fire(ctx, hooks.EventWorktreeAdd, vars)
	require.NoError(t, err)
	assert.Nil(t, results, "no hooks configured")

	writeConfig(t, fs, "hooks:\n  worktree_add:\n    - name: setup\n      command: make setup\n")
	_, err = ex.Fire(ctx, hooks.EventWorktreeAdd, vars)
	assert.ErrorIs(t, err, hooks.ErrNotTrusted)
	assert.Zero(t, runner.CallCount())

	cfg, err := ex.Load()
	require.NoError(t, err)
	trust, err := ex.Trust(cfg)
	require.NoError(t, err)
	assert.Len(t, trust.Hash, 64)

	results, err = ex.Fire(ctx, hooks.EventWorktreeAdd, vars)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Error)
	require.Equal(t, 1, runner.CallCount())
	assert.Equal(t, "make", runner.Calls[0].Name)
	assert.Equal(t, "/wt/foo", runner.Calls[0].Dir)

	results, err = ex.Fire(ctx, hooks.EventWorktreeRemove, vars)
	require.NoError(t, err)
	assert.Nil(t, results, "other events have no hooks")

	writeConfig(t, fs, "hooks:\n  worktree_add:\n    - name: setup\n      command: make other\n")
	_, err = ex.Fire(ctx, hooks.EventWorktreeAdd, vars)
	assert.ErrorIs(t, err, hooks.ErrNotTrusted, "editing the config revokes trust")
}

func TestExecutor_ExecuteHooks(t *testing.T) {
	ctx := context.Background()
	vars := hooks.Vars{RepoRoot: "/repo"}

	t.Run("fail strategy stops", func(t *testing.T) {
		runner := process.NewFakeRunner()
		ex := hooks.NewExecutor(storage.Memory(), configDir, runner, logger.Nop())
		results, err := ex.ExecuteHooks(ctx, hooks.EventWorktreeAdd, []hooks.Hook{
			{Name: "broken", Command: "false now", OnError: hooks.ErrorStrategyFail},
			{Name: "never", Command: "echo later", OnError: hooks.ErrorStrategyFail},
		}, vars)
		assert.ErrorContains(t, err, "hook 'broken' failed")
		require.Len(t, results, 1)
		assert.Equal(t, 1, results[0].ExitCode)
		assert.Equal(t, 1, runner.CallCount())
	})

	t.Run("warn and ignore continue", func(t *testing.T) {
		runner := process.NewFakeRunner().On(process.Result{Stdout: "ok"}, "later")
		ex := hooks.NewExecutor(storage.Memory(), configDir, runner, logger.Nop())
		results, err := ex.ExecuteHooks(ctx, hooks.EventWorktreeAdd, []hooks.Hook{
			{Name: "warned", Command: "false now", OnError: hooks.ErrorStrategyWarn},
			{Name: "ignored", Command: "false again", OnError: hooks.ErrorStrategyIgnore},
			{Name: "last", Command: "echo later", OnError: hooks.ErrorStrategyFail},
		}, vars)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Error(t, results[0].Error)
		assert.Error(t, results[1].Error)
		assert.NoError(t, results[2].Error)
		assert.Equal(t, "ok", results[2].Output)
	})

	t.Run("start failure", func(t *testing.T) {
		runner := process.NewFakeRunner().Fail(errors.New("not found"), "x")
		ex := hooks.NewExecutor(storage.Memory(), configDir, runner, logger.Nop())
		_, err := ex.ExecuteHooks(ctx, hooks.EventWorktreeAdd, []hooks.Hook{
			{Name: "missing", Command: "nope x", OnError: hooks.ErrorStrategyFail},
		}, vars)
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("scripts resolve against the repository root", func(t *testing.T) {
		fs := storage.Memory()
		require.NoError(t, fs.WriteFile("/repo/scripts/setup.sh", []byte("#!/bin/sh\n"), 0o755))
		runner := process.NewFakeRunner().On(process.Result{})
		ex := hooks.NewExecutor(fs, configDir, runner, logger.Nop())

		_, err := ex.ExecuteHooks(ctx, hooks.EventWorktreeAdd, []hooks.Hook{
			{Name: "script", Script: "scripts/setup.sh", OnError: hooks.ErrorStrategyFail},
		}, vars)
		require.NoError(t, err)
		require.Equal(t, 1, runner.CallCount())
		assert.Equal(t, "/repo/scripts/setup.sh", runner.Calls[0].Name)
		assert.Equal(t, "/repo", runner.Calls[0].Dir)

		_, err = ex.ExecuteHooks(ctx, hooks.EventWorktreeAdd, []hooks.Hook{
			{Name: "gone", Script: "scripts/gone.sh", OnError: hooks.ErrorStrategyFail},
		}, vars)
		assert.ErrorContains(t, err, "script not found")
	})

	t.Run("environment", func(t *testing.T) {
		runner := process.NewFakeRunner().On(process.Result{}, "env")
		ex := hooks.NewExecutor(storage.Memory(), configDir, runner, logger.Nop())
		_, err := ex.ExecuteHooks(ctx, hooks.EventMergeFinished, []hooks.Hook{
			{Name: "env", Command: "print env", Env: map[string]string{"B": "2", "A": "1"}},
		}, hooks.Vars{RepoRoot: "/repo", Path: "/repo", Branch: "main", Rev: "abc", MergeStatus: "clean"})
		require.NoError(t, err)
		require.Equal(t, 1, runner.CallCount())
		assert.Equal(t, []string{
			"ARBOR_EVENT=merge_finished",
			"ARBOR_REPO_ROOT=/repo",
			"ARBOR_WORKTREE_PATH=/repo",
			"ARBOR_WORKTREE_BRANCH=main",
			"ARBOR_WORKTREE_REV=abc",
			"ARBOR_MERGE_STATUS=clean",
			"A=1",
			"B=2",
		}, runner.Calls[0].Env)
	})

	t.Run("dry run runs nothing", func(t *testing.T) {
		runner := process.NewFakeRunner()
		ex := hooks.NewExecutor(storage.Memory(), configDir, runner, logger.Nop()).WithDryRun(true)
		results, err := ex.ExecuteHooks(ctx, hooks.EventWorktreeAdd, []hooks.Hook{
			{Name: "setup", Command: "make setup", OnError: hooks.ErrorStrategyFail},
		}, vars)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Zero(t, runner.CallCount())
	})
}

func TestExecutor_RealCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "hook.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$ARBOR_EVENT $ARBOR_WORKTREE_BRANCH $TEST_VAR\"\n"), 0o755))

	executor := hooks.NewExecutor(storage.OS(), filepath.Join(dir, ".arbor"), process.NewExecRunner(logger.Nop()), logger.Nop())
	results, err := executor.ExecuteHooks(context.Background(), hooks.EventWorktreeAdd, []hooks.Hook{
		{Name: "echo", Script: script, Timeout: "5s", OnError: hooks.ErrorStrategyFail, Env: map[string]string{"TEST_VAR": "test_value"}},
	}, hooks.Vars{RepoRoot: dir, Branch: "foo"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "worktree_add foo test_value", results[0].Output)
}
