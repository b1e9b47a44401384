// Package app provides dependency injection container for the application
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aki/arbor/internal/core/config"
	"github.com/aki/arbor/internal/core/gitpath"
	"github.com/aki/arbor/internal/core/hooks"
	"github.com/aki/arbor/internal/core/logger"
	"github.com/aki/arbor/internal/core/merge"
	"github.com/aki/arbor/internal/core/object"
	"github.com/aki/arbor/internal/core/refs"
	"github.com/aki/arbor/internal/core/status"
	"github.com/aki/arbor/internal/core/worktree"
	"github.com/aki/arbor/internal/filemanager"
	"github.com/aki/arbor/internal/process"
	"github.com/aki/arbor/internal/storage"
)

// Options selects the collaborators of a Container. Zero values fall back
// to the in-process defaults: OS filesystem, os/exec runner and a logger
// built from the loaded configuration.
type Options struct {
	FS     storage.Storage
	Runner process.Runner
	Logger logger.Logger
	// OSLocks adds flock advisory locks to the in-process repository lock
	OSLocks bool
}

// Container holds all manager instances and their dependencies
type Container struct {
	// ProjectRoot is the main worktree root, or the given directory when it
	// is not under version control
	ProjectRoot string

	FS     storage.Storage
	Logger logger.Logger
	Config *config.Config

	// Core managers
	ConfigManager *config.Manager
	Paths         *gitpath.Resolver
	Objects       *object.Reader
	Refs          *refs.Resolver
	Status        *status.Engine
	Worktrees     *worktree.Manager
	Merge         *merge.Manager
	Hooks         *hooks.Executor

	// Shared dependencies
	Locker *filemanager.Locker
}

// NewContainer creates a new container with all managers initialized in dependency order
func NewContainer(ctx context.Context, dir string, opts Options) (*Container, error) {
	fs := opts.FS
	if fs == nil {
		fs = storage.OS()
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	c := &Container{FS: fs, Paths: gitpath.NewResolver(fs), ProjectRoot: dir}
	if paths, ok := c.Paths.GetWorktreePaths(dir); ok {
		c.ProjectRoot = paths.Dir
	}

	// Load config with a bootstrap lock; the lock timeout is itself configured
	boot := config.NewManager(fs, filemanager.NewLocker(config.DefaultConfig().Lock.Timeout, opts.OSLocks), c.ProjectRoot)
	c.Config, err = boot.Load(ctx)
	if err != nil {
		return nil, err
	}

	c.Locker = filemanager.NewLocker(c.Config.Lock.Timeout, opts.OSLocks)
	c.ConfigManager = config.NewManager(fs, c.Locker, c.ProjectRoot)

	c.Logger = opts.Logger
	if c.Logger == nil {
		c.Logger, err = LoggerFromConfig(c.Config)
		if err != nil {
			return nil, err
		}
	}

	runner := opts.Runner
	if runner == nil {
		runner = process.NewExecRunner(c.Logger.With("component", "process"))
	}

	c.Objects = object.NewReader(fs)
	c.Refs = refs.NewResolver(fs, c.Paths, c.Logger.With("component", "refs"))
	c.Status = status.NewEngine(fs, c.Paths, c.Refs, c.Logger.With("component", "status"))
	c.Worktrees = worktree.NewManager(fs, c.Paths, c.Refs, c.Status, c.Locker, c.Logger.With("component", "worktree"))
	c.Merge = merge.NewManager(fs, c.Paths, c.Refs, runner, c.Logger.With("component", "merge"),
		merge.WithGitBinary(c.Config.Git.Binary),
		merge.WithIgnorePatterns(c.Config.IgnorePatterns()),
	)
	c.Hooks = hooks.NewExecutor(fs, filepath.Join(c.ProjectRoot, config.ArborDir), runner, c.Logger.With("component", "hooks"))

	return c, nil
}

// FireHooks runs the trusted hooks of event against this repository.
func (c *Container) FireHooks(ctx context.Context, event hooks.Event, vars hooks.Vars) ([]hooks.ExecutionResult, error) {
	if vars.RepoRoot == "" {
		vars.RepoRoot = c.ProjectRoot
	}
	return c.Hooks.Fire(ctx, event, vars)
}

// NewDefault creates the production container for dir: OS filesystem,
// flock-backed repository locks and the real git client.
func NewDefault(ctx context.Context, dir string, log logger.Logger) (*Container, error) {
	return NewContainer(ctx, dir, Options{Logger: log, OSLocks: true})
}

// LoggerFromConfig builds the stderr logger described by cfg.Log
func LoggerFromConfig(cfg *config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return logger.New(logger.WithLevel(level), logger.WithFormat(format), logger.WithOutput(os.Stderr)), nil
}
