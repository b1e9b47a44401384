package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aki/arbor/internal/core/logger"
	"github.com/aki/arbor/internal/process"
	"github.com/aki/arbor/internal/storage"
)

// Executor loads, trusts and runs the hooks of one repository.
type Executor struct {
	fs        storage.Storage
	configDir string
	runner    process.Runner
	logger    logger.Logger
	dryRun    bool
	now       func() time.Time
}

// NewExecutor creates an Executor reading hooks from configDir
func NewExecutor(fs storage.Storage, configDir string, runner process.Runner, log logger.Logger) *Executor {
	return &Executor{
		fs:        fs,
		configDir: configDir,
		runner:    runner,
		logger:    logger.OrNop(log),
		now:       time.Now,
	}
}

// WithDryRun sets dry run mode
func (e *Executor) WithDryRun(dryRun bool) *Executor {
	e.dryRun = dryRun
	return e
}

// ConfigDir returns the directory holding hooks.yaml
func (e *Executor) ConfigDir() string {
	return e.configDir
}

// Load reads the hooks configuration
func (e *Executor) Load() (*Config, error) {
	return LoadConfig(e.fs, e.configDir)
}

// Trusted reports whether the current configuration is trusted
func (e *Executor) Trusted(config *Config) (bool, error) {
	return IsTrusted(e.fs, e.configDir, config)
}

// Trust records the hash of the current configuration
func (e *Executor) Trust(config *Config) (*TrustInfo, error) {
	hash, err := CalculateConfigHash(config)
	if err != nil {
		return nil, err
	}
	trust := &TrustInfo{Hash: hash, TrustedAt: e.now().UTC(), TrustedBy: os.Getenv("USER")}
	if err := SaveTrustInfo(e.fs, e.configDir, trust); err != nil {
		return nil, err
	}
	e.logger.Info("hooks trusted", "hash", hash)
	return trust, nil
}

// Fire runs every hook attached to event. Nothing runs when no hook is
// attached. Configured but untrusted hooks yield ErrNotTrusted.
func (e *Executor) Fire(ctx context.Context, event Event, vars Vars) ([]ExecutionResult, error) {
	config, err := e.Load()
	if err != nil {
		return nil, err
	}
	hooks := config.GetHooksForEvent(event)
	if len(hooks) == 0 {
		return nil, nil
	}
	trusted, err := e.Trusted(config)
	if err != nil {
		return nil, err
	}
	if !trusted {
		return nil, fmt.Errorf("%w: run 'arbor hooks trust' after reviewing %s", ErrNotTrusted, filepath.Join(e.configDir, HooksConfigFile))
	}
	return e.ExecuteHooks(ctx, event, hooks, vars)
}

// ExecuteHooks runs hooks in order. A failing hook stops the run only when
// its strategy is fail.
func (e *Executor) ExecuteHooks(ctx context.Context, event Event, hooks []Hook, vars Vars) ([]ExecutionResult, error) {
	results := make([]ExecutionResult, 0, len(hooks))
	for _, hook := range hooks {
		result := e.executeHook(ctx, event, hook, vars)
		results = append(results, result)
		if result.Error == nil {
			continue
		}

		switch hook.OnError {
		case ErrorStrategyFail:
			return results, fmt.Errorf("hook '%s' failed: %w", hook.Name, result.Error)
		case ErrorStrategyIgnore:
		default:
			e.logger.Warn("hook failed", "event", event, "hook", hook.Name, "error", result.Error)
		}
	}
	return results, nil
}

func (e *Executor) executeHook(ctx context.Context, event Event, hook Hook, vars Vars) ExecutionResult {
	result := ExecutionResult{Hook: hook, StartTime: e.now()}

	cmd, err := e.command(event, hook, vars)
	if err != nil {
		result.Error = err
		result.EndTime = e.now()
		return result
	}
	if e.dryRun {
		e.logger.Info("dry run: would run hook", "event", event, "hook", hook.Name, "cmd", cmd.String())
		result.EndTime = e.now()
		return result
	}

	timeout := DefaultTimeout
	if hook.Timeout != "" {
		if d, err := time.ParseDuration(hook.Timeout); err == nil {
			timeout = d
		}
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logger.Debug("running hook", "event", event, "hook", hook.Name, "cmd", cmd.String(), "dir", cmd.Dir)
	res, err := e.runner.Run(runCtx, cmd)
	result.Output = res.Combined()
	result.ExitCode = res.ExitCode
	switch {
	case err != nil:
		result.Error = err
	case res.ExitCode != 0:
		result.Error = fmt.Errorf("exited with code %d", res.ExitCode)
	}
	result.EndTime = e.now()
	return result
}

// command builds the invocation of hook. Commands are split on
// whitespace; scripts resolve against the repository root.
func (e *Executor) command(event Event, hook Hook, vars Vars) (process.Command, error) {
	var args []string
	switch {
	case hook.Command != "":
		args = strings.Fields(hook.Command)
	case hook.Script != "":
		script := hook.Script
		if !filepath.IsAbs(script) {
			script = filepath.Join(vars.RepoRoot, script)
		}
		if !e.fs.Exists(script) {
			return process.Command{}, fmt.Errorf("script not found: %s", hook.Script)
		}
		args = []string{script}
	}
	if len(args) == 0 {
		return process.Command{}, fmt.Errorf("hook must have either 'command' or 'script'")
	}

	dir := vars.Dir
	if dir == "" {
		dir = vars.RepoRoot
	}
	return process.Command{Name: args[0], Args: args[1:], Dir: dir, Env: environment(event, hook, vars)}, nil
}

func environment(event Event, hook Hook, vars Vars) []string {
	env := []string{
		"ARBOR_EVENT=" + string(event),
		"ARBOR_REPO_ROOT=" + vars.RepoRoot,
		"ARBOR_WORKTREE_PATH=" + vars.Path,
		"ARBOR_WORKTREE_BRANCH=" + vars.Branch,
		"ARBOR_WORKTREE_REV=" + vars.Rev,
	}
	if vars.MergeStatus != "" {
		env = append(env, "ARBOR_MERGE_STATUS="+vars.MergeStatus)
	}
	keys := make([]string, 0, len(hook.Env))
	for k := range hook.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+hook.Env[k])
	}
	return env
}
