package process

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aki/arbor/internal/core/logger"
)

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	r := NewExecRunner(logger.Nop())
	ctx := context.Background()

	t.Run("captures output", func(t *testing.T) {
		res, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "echo out; echo err >&2"}, Dir: t.TempDir()})
		require.NoError(t, err)
		assert.Equal(t, "out", res.Stdout)
		assert.Equal(t, "err", res.Stderr)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, "out\nerr", res.Combined())
	})

	t.Run("non-zero exit is not an error", func(t *testing.T) {
		res, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "echo boom; exit 3"}})
		require.NoError(t, err)
		assert.Equal(t, 3, res.ExitCode)
		assert.Equal(t, "boom", res.Stdout)
	})

	t.Run("appends env", func(t *testing.T) {
		res, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "echo $ARBOR_TEST_VAR"}, Env: []string{"ARBOR_TEST_VAR=set"}})
		require.NoError(t, err)
		assert.Equal(t, "set", res.Stdout)
	})

	t.Run("missing binary is an error", func(t *testing.T) {
		_, err := r.Run(ctx, Command{Name: "arbor-no-such-binary"})
		assert.Error(t, err)
	})
}

func TestFakeRunner(t *testing.T) {
	f := NewFakeRunner().
		On(Result{Stdout: "Fast-forward"}, "merge", "main", "dev").
		Fail(errors.New("exec: not found"), "commit", "-m", "x")
	ctx := context.Background()

	res, err := f.Run(ctx, Command{Name: "git", Args: []string{"merge", "main", "dev"}, Dir: "/repo"})
	require.NoError(t, err)
	assert.Equal(t, "Fast-forward", res.Stdout)

	_, err = f.Run(ctx, Command{Name: "git", Args: []string{"commit", "-m", "x"}})
	assert.ErrorContains(t, err, "not found")

	res, err = f.Run(ctx, Command{Name: "git", Args: []string{"status"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)

	assert.Equal(t, 3, f.CallCount())
	assert.Equal(t, "/repo", f.Calls[0].Dir)
}
