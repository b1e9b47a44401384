// Package commands implements the arbor command line.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aki/arbor/internal/app"
	"github.com/aki/arbor/internal/cli/ui"
	"github.com/aki/arbor/internal/core/logger"
)

// ContainerFactory builds the container a command runs against
type ContainerFactory func(ctx context.Context, dir string, log logger.Logger) (*app.Container, error)

type rootOptions struct {
	dir       string
	format    string
	logLevel  string
	logFormat string
	noHooks   bool
}

// env is shared by every sub-command of one root command
type env struct {
	opts    rootOptions
	factory ContainerFactory
}

// NewRootCmd builds the command tree
func NewRootCmd(factory ContainerFactory) *cobra.Command {
	e := &env{factory: factory}

	rootCmd := &cobra.Command{
		Use:   "arbor",
		Short: "Git worktree and repository state engine",
		Long: `Arbor reads git's on-disk state directly: worktree topology, refs,
loose objects and per-file status. It manages linked worktrees and drives
the git client for merges and conflict inspection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			format, err := ui.ParseFormat(e.opts.format)
			if err != nil {
				return err
			}
			return ui.SetGlobalFormatter(format)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&e.opts.dir, "dir", "C", ".", "Run as if arbor was started in this directory")
	rootCmd.PersistentFlags().StringVar(&e.opts.format, "format", "pretty", "Output format (pretty, json)")
	rootCmd.PersistentFlags().BoolVar(&e.opts.noHooks, "no-hooks", false, "Do not run worktree and merge hooks")
	RegisterLoggerFlags(rootCmd, &e.opts)

	rootCmd.AddCommand(
		newPathsCmd(e),
		newRefCmd(e),
		newBranchCmd(e),
		newStatusCmd(e),
		newObjectCmd(e),
		newWorktreeCmd(e),
		newMergeCmd(e),
		newConfigCmd(e),
		newHooksCmd(e),
		newMCPCmd(e),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(app.NewDefault).ExecuteContext(ctx); err != nil {
		_ = ui.GlobalFormatter.OutputError(err)
		return err
	}
	return nil
}

// container builds the container for cmd. The configured output format
// applies unless --format was given.
func (e *env) container(cmd *cobra.Command) (*app.Container, error) {
	log, err := CreateLogger(cmd, &e.opts)
	if err != nil {
		return nil, err
	}
	c, err := e.factory(cmd.Context(), e.opts.dir, log)
	if err != nil {
		return nil, err
	}

	if !cmd.Flags().Changed("format") {
		format, err := ui.ParseFormat(c.Config.Output.Format)
		if err != nil {
			return nil, err
		}
		if err := ui.SetGlobalFormatter(format); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// resolve makes p absolute against --dir
func (e *env) resolve(p string) string {
	base, err := filepath.Abs(e.opts.dir)
	if err != nil {
		base = e.opts.dir
	}
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// target is the optional path argument, defaulting to --dir
func (e *env) target(args []string) string {
	if len(args) > 0 {
		return e.resolve(args[0])
	}
	return e.resolve("")
}

func notRepository(path string) error {
	return fmt.Errorf("not a git repository (or any parent): %s", path)
}

// output prints data as JSON, or calls pretty otherwise
func output(data interface{}, pretty func()) error {
	if ui.GlobalFormatter.IsJSON() {
		return ui.GlobalFormatter.Output(data)
	}
	pretty()
	return nil
}
