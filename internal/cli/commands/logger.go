package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aki/arbor/internal/core/logger"
)

// RegisterLoggerFlags registers global logging flags
func RegisterLoggerFlags(cmd *cobra.Command, opts *rootOptions) {
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")
}

// CreateLogger creates a logger from the logging flags. It returns nil when
// neither flag was given so the configuration decides.
func CreateLogger(cmd *cobra.Command, opts *rootOptions) (logger.Logger, error) {
	if !cmd.Flags().Changed("log-level") && !cmd.Flags().Changed("log-format") {
		return nil, nil
	}
	level, err := logger.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseFormat(opts.logFormat)
	if err != nil {
		return nil, err
	}
	return logger.New(
		logger.WithLevel(level),
		logger.WithFormat(format),
		logger.WithOutput(os.Stderr),
	), nil
}
