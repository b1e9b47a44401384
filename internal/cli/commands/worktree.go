package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aki/arbor/internal/cli/ui"
	"github.com/aki/arbor/internal/core/hooks"
	"github.com/aki/arbor/internal/core/worktree"
)

func newWorktreeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "worktree",
		Aliases: []string{"wt"},
		Short:   "Manage linked worktrees",
	}
	cmd.AddCommand(
		newWorktreeListCmd(e),
		newWorktreeAddCmd(e),
		newWorktreeRemoveCmd(e),
		newWorktreePruneCmd(e),
		newWorktreeCheckCmd(e),
	)
	return cmd
}

func newWorktreeListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the main worktree and every linked worktree",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			dir := e.resolve("")
			list, ok := c.Worktrees.List(cmd.Context(), dir)
			if !ok {
				return notRepository(dir)
			}
			return output(list, func() { ui.PrintWorktreeList(list) })
		},
	}
}

func newWorktreeAddCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path> <branch|commit>",
		Short: "Check out a branch or commit into a new linked worktree",
		Long: `Check out a local branch, or a full commit id for a detached worktree, into
path and link it to the repository. Nothing is left behind on failure.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			wt, err := c.Worktrees.Add(cmd.Context(), e.resolve(""), e.resolve(args[0]), args[1])
			if err != nil {
				return err
			}
			vars := hooks.Vars{Dir: wt.Path, Path: wt.Path, Branch: wt.Ref, Rev: wt.Rev}
			if err := e.fireHooks(cmd, c, hooks.EventWorktreeAdd, vars); err != nil {
				return fmt.Errorf("worktree created at %s but a hook failed: %w", wt.Path, err)
			}
			return output(wt, func() {
				ui.Success("Worktree created")
				ui.PrintWorktree(wt)
			})
		},
	}
}

func newWorktreeRemoveCmd(e *env) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "remove <path>",
		Aliases: []string{"rm"},
		Short:   "Remove a linked worktree",
		Long: `Remove the checkout and metadata of a linked worktree. A worktree with
unstaged changes is kept unless --force is given; --force also deletes its
branch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			path := e.resolve(args[0])

			target := c.Worktrees.Lookup(cmd.Context(), path)
			if !target.Main && target.Name != "" && c.FS.Exists(target.Path) {
				vars := hooks.Vars{Dir: target.Path, Path: target.Path, Branch: target.Ref, Rev: target.Rev}
				if err := e.fireHooks(cmd, c, hooks.EventWorktreeRemove, vars); err != nil {
					return fmt.Errorf("not removing %s: %w", path, err)
				}
			}

			removed, err := c.Worktrees.Remove(cmd.Context(), target, force)
			if err != nil {
				return err
			}
			data := map[string]interface{}{"path": path, "removed": removed}
			return output(data, func() {
				if !removed {
					ui.Warning("%s has changes; use --force to remove it anyway", path)
					return
				}
				ui.Success("Removed worktree %s", path)
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove even with changes, and delete the branch")
	return cmd
}

func newWorktreePruneCmd(e *env) *cobra.Command {
	var (
		dryRun bool
		expire time.Duration
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove metadata of worktrees whose checkout is gone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("expire") {
				expire = c.Config.Prune.Expire
			}
			pruned, err := c.Worktrees.Prune(cmd.Context(), e.resolve(""), worktree.PruneOptions{DryRun: dryRun, Expire: expire})
			if err != nil {
				return err
			}
			if pruned == nil {
				pruned = []worktree.Pruned{}
			}
			return output(pruned, func() { ui.PrintPruned(pruned, dryRun) })
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Report without removing anything")
	cmd.Flags().DurationVar(&expire, "expire", 0, "Only prune metadata older than this")
	return cmd
}

func newWorktreeCheckCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify both halves of every worktree link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			dir := e.resolve("")
			reports, ok := c.Worktrees.Check(cmd.Context(), dir)
			if !ok {
				return notRepository(dir)
			}
			return output(reports, func() { ui.PrintLinkReports(reports) })
		},
	}
}
