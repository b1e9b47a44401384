package commands

import (
	"github.com/spf13/cobra"

	"github.com/aki/arbor/internal/cli/ui"
)

func newPathsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "paths [path]",
		Short: "Show the worktree topology of a path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			target := e.target(args)
			paths, ok := c.Paths.GetWorktreePaths(target)
			if !ok {
				return notRepository(target)
			}
			return output(paths, func() { ui.PrintPaths(paths) })
		},
	}
}
