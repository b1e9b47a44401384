package ui

import (
	"fmt"
	"io"
	"os"
	"time"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetOutput redirects all UI output and returns a function restoring the
// previous writers
func SetOutput(out, errOut io.Writer) func() {
	oldOut, oldErr := stdout, stderr
	stdout, stderr = out, errOut
	return func() { stdout, stderr = oldOut, oldErr }
}

// Print functions for consistent output

func Error(format string, args ...interface{}) {
	fmt.Fprintf(stderr, "%s %s\n", ErrorIcon, ErrorStyle.Render(fmt.Sprintf(format, args...)))
}

func Success(format string, args ...interface{}) {
	fmt.Fprintf(stdout, "%s %s\n", SuccessIcon, SuccessStyle.Render(fmt.Sprintf(format, args...)))
}

func Info(format string, args ...interface{}) {
	fmt.Fprintf(stdout, "%s %s\n", InfoIcon, InfoStyle.Render(fmt.Sprintf(format, args...)))
}

func Warning(format string, args ...interface{}) {
	fmt.Fprintf(stdout, "%s %s\n", WarningIcon, WarningStyle.Render(fmt.Sprintf(format, args...)))
}

// OutputLine prints one formatted line to stdout
func OutputLine(format string, args ...interface{}) {
	fmt.Fprintf(stdout, format+"\n", args...)
}

// PrintKeyValue prints an aligned "key: value" line
func PrintKeyValue(key string, value interface{}) {
	fmt.Fprintf(stdout, "  %s %v\n", DimStyle.Render(fmt.Sprintf("%-10s", key+":")), value)
}

// FormatTime formats a time for display
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		minutes := int(diff.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// ShortHash abbreviates an object id to seven characters
func ShortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
