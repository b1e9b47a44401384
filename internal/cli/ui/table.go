package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/rodaine/table"
)

// NewTable returns a table writing to stdout. Cells may carry ANSI styling;
// widths are measured without it.
func NewTable(headers ...interface{}) table.Table {
	return table.New(headers...).
		WithHeaderFormatter(func(format string, vals ...interface{}) string {
			return HeaderStyle.Render(fmt.Sprintf(format, vals...))
		}).
		WithPadding(2).
		WithWidthFunc(lipgloss.Width).
		WithWriter(stdout)
}

// PrintSectionHeader prints "<icon> <title> (<count>)" after a blank line.
func PrintSectionHeader(icon string, title string, count int) {
	OutputLine("\n%s %s (%d)", icon, title, count)
}
