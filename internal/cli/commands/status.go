package commands

import (
	"github.com/spf13/cobra"

	"github.com/aki/arbor/internal/cli/ui"
	"github.com/aki/arbor/internal/core/status"
)

func newStatusCmd(e *env) *cobra.Command {
	var (
		all  bool
		file string
		has  []string
	)

	cmd := &cobra.Command{
		Use:   "status [pathspec...]",
		Short: "Show the status matrix of the working tree",
		Long: `Show [HEAD, WORKDIR, STAGE] for every path of the checkout, or for the
given path prefixes. With --file a single file or directory is classified;
adding --has reports whether its status is one of the listed statuses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if file != "" {
				target := e.resolve(file)
				if len(has) > 0 {
					filters := make([]status.GitStatus, len(has))
					for i, h := range has {
						filters[i] = status.GitStatus(h)
					}
					ok := c.Status.HasStatus(ctx, target, filters...)
					data := map[string]interface{}{"path": target, "has": ok}
					return output(data, func() { ui.OutputLine("%t", ok) })
				}
				st, ok := c.Status.GetStatus(ctx, target)
				if !ok {
					return notRepository(target)
				}
				data := map[string]string{"path": target, "status": string(st)}
				return output(data, func() { ui.OutputLine("%s", st) })
			}

			dir := e.resolve("")
			entries, ok, err := c.Status.StatusMatrix(ctx, dir, args...)
			if err != nil {
				return err
			}
			if !ok {
				return notRepository(dir)
			}
			if entries == nil {
				entries = []status.Entry{}
			}
			return output(entries, func() { ui.PrintStatusEntries(entries, all) })
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include unmodified paths")
	cmd.Flags().StringVar(&file, "file", "", "Classify a single file or directory")
	cmd.Flags().StringSliceVar(&has, "has", nil, "With --file, test for any of these statuses")
	return cmd
}
