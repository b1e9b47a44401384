// Package merge drives the external git client for merges and finds
// conflict markers in checkouts.
package merge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMergeFailed is matched by CommandError for a git invocation that ran
// and exited non-zero where a clean exit was required.
var ErrMergeFailed = errors.New("git command failed")

// Status classifies the outcome of Merge
type Status string

const (
	StatusClean         Status = "clean"
	StatusFastForward   Status = "fast-forward"
	StatusConflicted    Status = "conflicted"
	StatusAlreadyMerged Status = "already-merged"
	StatusFailed        Status = "failed"
)

// Result is the outcome of Merge
type Result struct {
	Status        Status   `json:"status"`
	AlreadyMerged bool     `json:"alreadyMerged"`
	FastForward   bool     `json:"fastForward"`
	Conflicts     []string `json:"conflicts,omitempty"`
	// Output is the combined stdout and stderr of the merge, verbatim
	Output string `json:"output,omitempty"`
	// Root is the checkout the merge ran in
	Root string `json:"root,omitempty"`
}

// Conflict lists the byte offsets at which conflict blocks start in Path
type Conflict struct {
	Path      string `json:"path"`
	Conflicts []int  `json:"conflicts"`
}

// InProgress describes a conflicted merge that has not been concluded.
// Base is empty when MERGE_MSG does not name it.
type InProgress struct {
	Base      string     `json:"base,omitempty"`
	Compare   string     `json:"compare"`
	Conflicts []Conflict `json:"conflicts"`
}

// FileStatus is one line of status --porcelain or diff-files --name-status
type FileStatus struct {
	Code string `json:"code"`
	Path string `json:"path"`
	// From is the source path of a rename
	From string `json:"from,omitempty"`
}

// Unmerged reports whether a porcelain code marks an unmerged path
func (f FileStatus) Unmerged() bool {
	switch f.Code {
	case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
		return true
	}
	return false
}

// CheckIssue is one problem reported by diff --check
type CheckIssue struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// CommandError carries the captured output of a failed git invocation
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Stderr)
	if out == "" {
		out = strings.TrimSpace(e.Stdout)
	}
	return fmt.Sprintf("%s %s: exit status %d: %s", e.Command, strings.Join(e.Args, " "), e.ExitCode, out)
}

// Is matches ErrMergeFailed
func (e *CommandError) Is(target error) bool {
	return target == ErrMergeFailed
}
