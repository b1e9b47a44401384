// Package ui renders arbor's command output: styled messages, tables and
// views of worktrees, status entries and merge results.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aki/arbor/internal/core/status"
)

var (
	red    = lipgloss.AdaptiveColor{Light: "#B3261E", Dark: "#FF6B6B"}
	green  = lipgloss.AdaptiveColor{Light: "#1B7F3B", Dark: "#5AD17E"}
	blue   = lipgloss.AdaptiveColor{Light: "#1F5FBF", Dark: "#6CB6FF"}
	yellow = lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#E3B341"}
	grey   = lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"}
)

var (
	ErrorStyle   = lipgloss.NewStyle().Foreground(red)
	SuccessStyle = lipgloss.NewStyle().Foreground(green)
	InfoStyle    = lipgloss.NewStyle().Foreground(blue)
	WarningStyle = lipgloss.NewStyle().Foreground(yellow)
	DimStyle     = lipgloss.NewStyle().Foreground(grey)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	// HeaderStyle is applied to table header cells
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(grey)
)

// Icons prefixing message lines and section headers
const (
	WorktreeIcon = "🌳"
	ConflictIcon = "⚔️"
	HookIcon     = "🪝"
	SuccessIcon  = "✅"
	ErrorIcon    = "❌"
	InfoIcon     = "ⓘ"
	WarningIcon  = "⚠️"
)

// StatusStyle colors a file status like git status does: work that is
// only in the worktree red, staged work green, conflicts bold red.
func StatusStyle(s status.GitStatus) lipgloss.Style {
	switch {
	case s == status.StatusUnmerged:
		return ErrorStyle.Bold(true)
	case s == status.StatusUnmodified, s == status.StatusIgnored, s == status.StatusAbsent:
		return DimStyle
	case strings.HasPrefix(string(s), "*"):
		return ErrorStyle
	default:
		return SuccessStyle
	}
}
