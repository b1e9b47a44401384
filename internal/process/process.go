// Package process is the port to external commands such as the git client
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/aki/arbor/internal/core/logger"
)

// Command describes one invocation
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the current environment as KEY=value pairs
	Env []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the captured outcome of a command that ran
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout followed by stderr
func (r Result) Combined() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner runs commands. A non-zero exit is reported in Result, not as an error;
// the error is reserved for commands that could not run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	Logger logger.Logger
}

// NewExecRunner creates an ExecRunner
func NewExecRunner(log logger.Logger) *ExecRunner {
	return &ExecRunner{Logger: logger.OrNop(log)}
}

// Run implements Runner
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	log := logger.OrNop(r.Logger)
	log.Debug("run command", "cmd", cmd.Name, "args", cmd.Args, "dir", cmd.Dir)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{
		Stdout: strings.TrimRight(stdout.String(), "\n"),
		Stderr: strings.TrimRight(stderr.String(), "\n"),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		log.Debug("command exited", "cmd", cmd.Name, "exit", res.ExitCode)
		return res, nil
	}

	return res, fmt.Errorf("failed to run %s: %w (stdout: %q, stderr: %q)", cmd, err, res.Stdout, res.Stderr)
}
