package process

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeRunner replays canned results keyed by the joined argument list.
// It records every command it receives.
type FakeRunner struct {
	mu      sync.Mutex
	results map[string]Result
	errs    map[string]error
	Calls   []Command
}

// NewFakeRunner creates an empty FakeRunner
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		results: make(map[string]Result),
		errs:    make(map[string]error),
	}
}

// On registers the result for the given arguments
func (f *FakeRunner) On(res Result, args ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[strings.Join(args, " ")] = res
	return f
}

// Fail registers a start failure for the given arguments
func (f *FakeRunner) Fail(err error, args ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[strings.Join(args, " ")] = err
	return f
}

// Run implements Runner
func (f *FakeRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, cmd)

	key := strings.Join(cmd.Args, " ")
	if err, ok := f.errs[key]; ok {
		return Result{}, fmt.Errorf("failed to run %s: %w", cmd, err)
	}
	if res, ok := f.results[key]; ok {
		return res, nil
	}
	return Result{ExitCode: 1, Stderr: "unexpected command: " + cmd.String()}, nil
}

// CallCount returns how many commands ran
func (f *FakeRunner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
