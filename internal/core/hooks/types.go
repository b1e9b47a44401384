// Package hooks runs user-defined commands on worktree and merge events.
package hooks

import (
	"errors"
	"time"
)

// ErrNotTrusted is returned when hooks are configured but their current
// content has not been trusted
var ErrNotTrusted = errors.New("hooks configuration is not trusted")

// ErrorStrategy defines how to handle hook failures
type ErrorStrategy string

const (
	// ErrorStrategyFail stops execution on error
	ErrorStrategyFail ErrorStrategy = "fail"
	// ErrorStrategyWarn logs warning but continues
	ErrorStrategyWarn ErrorStrategy = "warn"
	// ErrorStrategyIgnore continues silently
	ErrorStrategyIgnore ErrorStrategy = "ignore"
)

// DefaultTimeout bounds a hook without its own timeout
const DefaultTimeout = 5 * time.Minute

// Hook represents a single hook configuration
type Hook struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Script  string            `yaml:"script,omitempty" json:"script,omitempty"`
	Timeout string            `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	OnError ErrorStrategy     `yaml:"on_error,omitempty" json:"on_error,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Config represents the hooks configuration file
type Config struct {
	Hooks map[string][]Hook `yaml:"hooks" json:"hooks"`
}

// Event represents a hook event type
type Event string

const (
	// EventWorktreeAdd fires after a linked worktree is created, in the new checkout
	EventWorktreeAdd Event = "worktree_add"
	// EventWorktreeRemove fires before a linked worktree is removed, in that checkout
	EventWorktreeRemove Event = "worktree_remove"
	// EventMergeFinished fires after git merge ran, in the checkout holding base
	EventMergeFinished Event = "merge_finished"
)

// Events lists every event hooks can be attached to
func Events() []Event {
	return []Event{EventWorktreeAdd, EventWorktreeRemove, EventMergeFinished}
}

// Vars describe the subject of an event. They are exported to hooks as
// ARBOR_* environment variables.
type Vars struct {
	RepoRoot string
	// Dir is where hooks run; it defaults to RepoRoot
	Dir    string
	Path   string
	Branch string
	Rev    string
	// MergeStatus is set for EventMergeFinished
	MergeStatus string
}

// ExecutionResult represents the result of hook execution
type ExecutionResult struct {
	Hook      Hook
	StartTime time.Time
	EndTime   time.Time
	Output    string
	ExitCode  int
	Error     error
}

// TrustInfo represents hook trust information
type TrustInfo struct {
	Hash      string    `yaml:"hash"`
	TrustedAt time.Time `yaml:"trusted_at"`
	TrustedBy string    `yaml:"trusted_by"`
}
