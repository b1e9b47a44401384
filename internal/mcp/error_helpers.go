package mcp

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestions represents an error with tool suggestions
type ErrorWithSuggestions struct {
	Message     string
	Suggestions []string
	Err         error
}

// Error returns the error message with suggestions
func (e *ErrorWithSuggestions) Error() string {
	if len(e.Suggestions) == 0 {
		return e.Message
	}

	var sb strings.Builder
	sb.WriteString(e.Message)
	sb.WriteString("\n\nDid you mean to use one of these tools instead?\n")
	for _, suggestion := range e.Suggestions {
		sb.WriteString("  - ")
		sb.WriteString(suggestion)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Unwrap returns the underlying error, if any
func (e *ErrorWithSuggestions) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestions creates a new error with tool suggestions
func NewErrorWithSuggestions(message string, suggestions ...string) error {
	return &ErrorWithSuggestions{
		Message:     message,
		Suggestions: suggestions,
	}
}

// NotRepositoryError is returned when a path is outside any repository
func NotRepositoryError(path string) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("not a git repository: %s", path),
		"worktree_list - List checkouts of the served repository",
	)
}

// RefNotFoundError is returned when a name does not resolve
func RefNotFoundError(ref string) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("reference not found: %s", ref),
		"worktree_list - See which branches are checked out",
	)
}

// InvalidParameterError returns an error for a missing or mistyped parameter
func InvalidParameterError(param string, expected string) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("invalid %s: expected %s", param, expected),
		"Use the tool descriptions to understand parameter requirements",
	)
}

// ToolError wraps a failed operation with suggestions for recovering from it
func ToolError(err error, suggestions ...string) error {
	return &ErrorWithSuggestions{Message: err.Error(), Suggestions: suggestions, Err: err}
}
