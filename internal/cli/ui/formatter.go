package ui

import (
	"encoding/json"
	"fmt"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	// FormatPretty represents human-readable output format
	FormatPretty OutputFormat = "pretty"
	// FormatJSON represents JSON output format
	FormatJSON OutputFormat = "json"
)

// ParseFormat converts a string to OutputFormat
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "pretty", "":
		return FormatPretty, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// Formatter is the interface for output formatting
type Formatter interface {
	// Output formats and displays any data
	Output(data interface{}) error

	// OutputError formats and displays an error
	OutputError(err error) error

	// IsJSON returns true if this formatter outputs JSON
	IsJSON() bool
}

// prettyFormatter implements Formatter for human-readable output
type prettyFormatter struct{}

// NewPrettyFormatter creates a new pretty formatter
func NewPrettyFormatter() Formatter {
	return &prettyFormatter{}
}

func (f *prettyFormatter) Output(data interface{}) error {
	// pretty data is expected to be rendered already
	if str, ok := data.(string); ok {
		_, err := fmt.Fprint(stdout, str)
		return err
	}
	_, err := fmt.Fprintln(stdout, data)
	return err
}

func (f *prettyFormatter) OutputError(err error) error {
	_, werr := fmt.Fprintf(stderr, "%s %s\n", ErrorIcon, ErrorStyle.Render(err.Error()))
	return werr
}

func (f *prettyFormatter) IsJSON() bool {
	return false
}

// jsonFormatter implements Formatter for JSON output
type jsonFormatter struct{}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() Formatter {
	return &jsonFormatter{}
}

func (f *jsonFormatter) Output(data interface{}) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *jsonFormatter) OutputError(err error) error {
	// errors stay plain text on stderr so stdout remains valid JSON
	_, werr := fmt.Fprintf(stderr, "Error: %v\n", err)
	return werr
}

func (f *jsonFormatter) IsJSON() bool {
	return true
}

// GlobalFormatter is the global formatter instance
var GlobalFormatter Formatter = NewPrettyFormatter()

// SetGlobalFormatter sets the global formatter
func SetGlobalFormatter(format OutputFormat) error {
	switch format {
	case FormatPretty:
		GlobalFormatter = NewPrettyFormatter()
	case FormatJSON:
		GlobalFormatter = NewJSONFormatter()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	return nil
}

// WithFormatter temporarily sets a formatter for a function execution
func WithFormatter(format OutputFormat, fn func() error) error {
	oldFormatter := GlobalFormatter
	defer func() { GlobalFormatter = oldFormatter }()

	if err := SetGlobalFormatter(format); err != nil {
		return err
	}

	return fn()
}
