package merge

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/aki/arbor/internal/core/gitpath"
	"github.com/aki/arbor/internal/core/logger"
	"github.com/aki/arbor/internal/core/refs"
	"github.com/aki/arbor/internal/process"
	"github.com/aki/arbor/internal/storage"
)

// DefaultGitBinary is the client used when none is configured
const DefaultGitBinary = "git"

// Manager runs merges and conflict scans
type Manager struct {
	fs     storage.Storage
	paths  *gitpath.Resolver
	refs   *refs.Resolver
	runner process.Runner
	git    string
	ignore []gitignore.Pattern
	logger logger.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithGitBinary sets the git client to invoke
func WithGitBinary(bin string) Option {
	return func(m *Manager) {
		if bin != "" {
			m.git = bin
		}
	}
}

// WithIgnorePatterns adds patterns excluded from CheckProject on top of the
// repository's own ignore rules
func WithIgnorePatterns(ps []gitignore.Pattern) Option {
	return func(m *Manager) {
		m.ignore = append(m.ignore, ps...)
	}
}

// NewManager creates a Manager
func NewManager(fs storage.Storage, paths *gitpath.Resolver, refs *refs.Resolver, runner process.Runner, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		fs:     fs,
		paths:  paths,
		refs:   refs,
		runner: runner,
		git:    DefaultGitBinary,
		logger: logger.OrNop(log),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// run invokes git in dir. Only a failure to start is an error.
func (m *Manager) run(ctx context.Context, dir string, args ...string) (process.Result, error) {
	cmd := process.Command{Name: m.git, Args: args, Dir: dir}
	m.logger.Debug("invoking git", "cmd", m.git, "args", args, "dir", dir)
	res, err := m.runner.Run(ctx, cmd)
	if err != nil {
		return res, fmt.Errorf("failed to run %s in %s: %w", cmd, dir, err)
	}
	return res, nil
}

// runOK is run where a non-zero exit is an error
func (m *Manager) runOK(ctx context.Context, dir string, args ...string) (process.Result, error) {
	res, err := m.run(ctx, dir, args...)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, &CommandError{Command: m.git, Args: args, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
	}
	return res, nil
}

// repoPaths resolves dir or reports it as outside version control
func (m *Manager) repoPaths(dir string) (gitpath.WorktreePaths, error) {
	paths, ok := m.paths.GetWorktreePaths(dir)
	if !ok {
		return paths, fmt.Errorf("%w: %s", refs.ErrNotRepository, dir)
	}
	return paths, nil
}
