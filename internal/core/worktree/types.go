// Package worktree manages linked worktrees: the checkout directory, the
// metadata under <gitdir>/worktrees/<name>, and the two files linking them.
package worktree

import (
	"errors"
	"time"
)

var (
	// ErrMainWorktree is returned when an operation refuses the main worktree
	ErrMainWorktree = errors.New("cannot remove the main worktree")
	// ErrNotLinked is returned when a path is not a linked worktree
	ErrNotLinked = errors.New("not a linked worktree")
	// ErrInvalidCommitish is returned when a commitish is neither a local branch nor an object id
	ErrInvalidCommitish = errors.New("commitish is neither a local branch nor a commit id")
	// ErrWorktreeExists is returned when the checkout or metadata already exists
	ErrWorktreeExists = errors.New("worktree already exists")
	// ErrBranchCheckedOut is returned when a branch is already checked out elsewhere
	ErrBranchCheckedOut = errors.New("branch is already checked out")
)

// Reasons a linked worktree is prunable
const (
	ReasonGitdirMissing   = "gitdir file does not exist"
	ReasonGitdirInvalid   = "invalid gitdir file"
	ReasonCheckoutMissing = "gitdir file points to non-existent location"
	ReasonNoBacklink      = ".git file does not point back"
)

// Worktree is one checkout of a repository. It is recomputed on every query.
type Worktree struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Bare     bool   `json:"bare"`
	Detached bool   `json:"detached"`
	Main     bool   `json:"main"`
	// Ref is the short branch name, empty when detached
	Ref string `json:"ref,omitempty"`
	// Rev is the commit HEAD resolves to, empty on an unborn branch
	Rev string `json:"rev,omitempty"`
	// Name is the metadata directory name of a linked worktree
	Name     string `json:"name,omitempty"`
	Prunable string `json:"prunable,omitempty"`
}

// PruneOptions controls Prune
type PruneOptions struct {
	DryRun bool
	// Expire only prunes metadata whose gitdir file is older than this
	Expire time.Duration
}

// Pruned describes one metadata directory selected by Prune
type Pruned struct {
	Name   string `json:"name"`
	Gitdir string `json:"gitdir"`
	Reason string `json:"reason"`
}

// LinkState classifies the bidirectional link of a linked worktree
type LinkState string

const (
	LinkConsistent      LinkState = "consistent"
	LinkGitdirMissing   LinkState = "gitdir-missing"
	LinkCheckoutMissing LinkState = "checkout-missing"
	LinkBroken          LinkState = "backlink-broken"
)

// LinkReport is the result of checking one linked worktree
type LinkReport struct {
	Name     string    `json:"name"`
	Gitdir   string    `json:"gitdir"`
	Checkout string    `json:"checkout,omitempty"`
	State    LinkState `json:"state"`
	Reason   string    `json:"reason,omitempty"`
}
