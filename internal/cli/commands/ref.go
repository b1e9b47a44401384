package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aki/arbor/internal/cli/ui"
	"github.com/aki/arbor/internal/core/refs"
)

func newRefCmd(e *env) *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "ref <ref>",
		Short: "Resolve a ref, branch or commit id to an object id",
		Long: `Resolve a ref the way git does: HEAD of the current worktree, loose refs,
packed-refs and full object ids. A trailing ~N or --depth walks back through
history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			h, ok, err := c.Refs.ResolveRef(cmd.Context(), refs.ResolveOptions{Dir: e.resolve(""), Ref: args[0], Depth: depth})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", refs.ErrRefNotFound, args[0])
			}
			data := map[string]string{"ref": args[0], "oid": h.String()}
			return output(data, func() { ui.OutputLine("%s", h.String()) })
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Walk this many commits back")
	return cmd
}

func newBranchCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Inspect and delete branches",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Show the branch HEAD points at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			branch, ok := c.Refs.CurrentBranch(e.resolve(""))
			data := map[string]interface{}{"branch": branch, "detached": !ok}
			return output(data, func() {
				if !ok {
					ui.Info("HEAD is detached or the directory is not a repository")
					return
				}
				ui.OutputLine("%s", branch)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Show the default branch of origin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			branch, ok := c.Refs.DefaultBranch(e.resolve(""))
			data := map[string]interface{}{"branch": branch, "found": ok}
			return output(data, func() {
				if !ok {
					ui.Info("refs/remotes/origin/HEAD is not set")
					return
				}
				ui.OutputLine("%s", branch)
			})
		},
	})

	var remote bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List local or remote-tracking branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			dir := e.resolve("")
			branches, ok := c.Refs.ListBranches(dir, remote)
			if !ok {
				return notRepository(dir)
			}
			current, _ := c.Refs.CurrentBranch(dir)
			return output(branches, func() { ui.PrintBranches(branches, current) })
		},
	}
	listCmd.Flags().BoolVarP(&remote, "remote", "r", false, "List remote-tracking branches")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "log <a> <b>",
		Short: "Show commits reachable from exactly one of two refs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			commits, err := c.Refs.BranchLog(cmd.Context(), e.resolve(""), args[0], args[1])
			if err != nil {
				return err
			}
			if commits == nil {
				commits = []refs.Commit{}
			}
			return output(commits, func() { ui.PrintCommits(commits) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <branch>",
		Short: "Delete a local branch that is not checked out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			dir := e.resolve("")
			paths, ok := c.Paths.GetWorktreePaths(dir)
			if !ok {
				return notRepository(dir)
			}
			worktrees, _ := c.Worktrees.List(cmd.Context(), dir)
			for _, wt := range worktrees {
				if wt.Ref == args[0] && wt.Prunable == "" {
					return fmt.Errorf("branch %s is checked out at %s", args[0], wt.Path)
				}
			}

			unlock, err := c.Locker.LockRepo(cmd.Context(), paths.Gitdir)
			if err != nil {
				return err
			}
			defer unlock()
			if err := c.Refs.DeleteBranch(cmd.Context(), dir, args[0]); err != nil {
				return err
			}
			data := map[string]interface{}{"branch": args[0], "deleted": true}
			return output(data, func() { ui.Success("Deleted branch %s", args[0]) })
		},
	})

	return cmd
}
