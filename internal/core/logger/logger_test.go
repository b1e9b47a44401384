package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("text output carries attributes", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(WithOutput(&buf), WithDebug())

		l.Debug("worktree added", "branch", "foo")

		out := buf.String()
		assert.Contains(t, out, "worktree added")
		assert.Contains(t, out, "branch=foo")
	})

	t.Run("level filters lower records", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(WithOutput(&buf), WithLevel(slog.LevelWarn))

		l.Debug("debug message")
		l.Info("info message")
		l.Warn("warn message")
		l.Error("error message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("json output", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(WithOutput(&buf), WithFormat(FormatJSON))

		l.Info("merge finished", "outcome", "clean")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "merge finished", record["msg"])
		assert.Equal(t, "clean", record["outcome"])
	})
}

func TestWithAndGroup(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf)).With("repo", "/r").WithGroup("git")

	l.Info("run", "cmd", "merge")

	out := buf.String()
	assert.Contains(t, out, "repo=/r")
	assert.Contains(t, out, "git.cmd=merge")
}

func TestContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	var buf bytes.Buffer
	l := New(WithOutput(&buf))
	ctx := WithContext(context.Background(), l)

	FromContext(ctx).Info("from context")
	assert.True(t, strings.Contains(buf.String(), "from context"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
