package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aki/arbor/internal/cli/ui"
	"github.com/aki/arbor/internal/core/hooks"
	"github.com/aki/arbor/internal/core/merge"
)

func newMergeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Run merges and inspect conflicts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run <base> <compare>",
		Short: "Merge compare and base in the checkout holding base",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			res, err := c.Merge.Merge(cmd.Context(), e.resolve(""), args[0], args[1])
			if err != nil {
				return err
			}
			if res.Status != merge.StatusAlreadyMerged {
				vars := hooks.Vars{Dir: res.Root, Path: res.Root, Branch: args[0], MergeStatus: string(res.Status)}
				if err := e.fireHooks(cmd, c, hooks.EventMergeFinished, vars); err != nil {
					return err
				}
			}
			if err := output(res, func() { ui.PrintMergeResult(res) }); err != nil {
				return err
			}
			if res.Status == merge.StatusFailed {
				return fmt.Errorf("merge of %s into %s failed", args[1], args[0])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "abort",
		Short: "Abort the merge in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			aborted, err := c.Merge.AbortMerge(cmd.Context(), e.resolve(""))
			if err != nil {
				return err
			}
			data := map[string]bool{"aborted": aborted}
			return output(data, func() {
				if !aborted {
					ui.Info("No merge in progress")
					return
				}
				ui.Success("Merge aborted")
			})
		},
	})

	var message string
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Commit the merge in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			resolved, err := c.Merge.ResolveMerge(cmd.Context(), e.resolve(""), message)
			if err != nil {
				return err
			}
			data := map[string]bool{"resolved": resolved}
			return output(data, func() {
				if !resolved {
					ui.Info("No merge in progress")
					return
				}
				ui.Success("Merge committed")
			})
		},
	}
	resolveCmd.Flags().StringVarP(&message, "message", "m", "", "Commit message (defaults to MERGE_MSG)")
	cmd.AddCommand(resolveCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "conflicts [path]",
		Short: "Find conflict markers in a file or below a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			target := e.target(args)
			info, err := c.FS.Stat(target)
			if err != nil {
				return err
			}
			var conflicts []merge.Conflict
			if info.IsDir() {
				conflicts, err = c.Merge.CheckProject(cmd.Context(), target)
				if err != nil {
					return err
				}
			} else {
				found, err := c.Merge.CheckFilepath(target)
				if err != nil {
					return err
				}
				conflicts = []merge.Conflict{}
				if len(found.Conflicts) > 0 {
					conflicts = append(conflicts, found)
				}
			}
			return output(conflicts, func() { ui.PrintConflicts(conflicts) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Describe the merge in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			progress, err := c.Merge.ResolveConflicts(cmd.Context(), e.resolve(""))
			if err != nil {
				return err
			}
			return output(progress, func() { ui.PrintInProgress(progress) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "base <a> <b>",
		Short: "Show the best common ancestor of two commits",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			base, ok, err := c.Merge.MergeBase(cmd.Context(), e.resolve(""), args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s and %s have no common ancestor", args[0], args[1])
			}
			return output(map[string]string{"base": base}, func() { ui.OutputLine("%s", base) })
		},
	})

	var nameOnly bool
	unmergedCmd := &cobra.Command{
		Use:   "unmerged",
		Short: "List unmerged paths reported by git status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			if nameOnly {
				paths, err := c.Merge.UnmergedPaths(cmd.Context(), e.resolve(""))
				if err != nil {
					return err
				}
				if paths == nil {
					paths = []string{}
				}
				return output(paths, func() {
					for _, p := range paths {
						ui.OutputLine("%s", p)
					}
				})
			}
			files, err := c.Merge.PorcelainStatus(cmd.Context(), e.resolve(""))
			if err != nil {
				return err
			}
			unmerged := []merge.FileStatus{}
			for _, f := range files {
				if f.Unmerged() {
					unmerged = append(unmerged, f)
				}
			}
			return output(unmerged, func() { ui.PrintFileStatuses(unmerged) })
		},
	}
	unmergedCmd.Flags().BoolVar(&nameOnly, "name-only", false, "Print only the paths")
	cmd.AddCommand(unmergedCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "diff-files",
		Short: "List files whose working copy differs from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			files, err := c.Merge.DiffFiles(cmd.Context(), e.resolve(""))
			if err != nil {
				return err
			}
			if files == nil {
				files = []merge.FileStatus{}
			}
			return output(files, func() { ui.PrintFileStatuses(files) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Report leftover conflict markers and whitespace errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			issues, err := c.Merge.DiffCheck(cmd.Context(), e.resolve(""))
			if err != nil {
				return err
			}
			if issues == nil {
				issues = []merge.CheckIssue{}
			}
			return output(issues, func() { ui.PrintCheckIssues(issues) })
		},
	})

	return cmd
}
