package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aki/arbor/internal/app"
	"github.com/aki/arbor/internal/cli/ui"
	"github.com/aki/arbor/internal/core/hooks"
)

// fireHooks runs the hooks of event unless --no-hooks was given. Untrusted
// hooks and hooks failing under a warn strategy are reported, not returned.
func (e *env) fireHooks(cmd *cobra.Command, c *app.Container, event hooks.Event, vars hooks.Vars) error {
	if e.opts.noHooks {
		return nil
	}
	results, err := c.FireHooks(cmd.Context(), event, vars)
	if errors.Is(err, hooks.ErrNotTrusted) {
		warn(c, "Skipped %s hooks: %v", event, err)
		return nil
	}
	for _, r := range results {
		if r.Error != nil && r.Hook.OnError != hooks.ErrorStrategyIgnore {
			warn(c, "Hook %s failed: %v", r.Hook.Name, r.Error)
		}
	}
	return err
}

// warn keeps stdout clean for JSON output
func warn(c *app.Container, format string, args ...interface{}) {
	if ui.GlobalFormatter.IsJSON() {
		c.Logger.Warn(fmt.Sprintf(format, args...))
		return
	}
	ui.Warning(format, args...)
}

func newHooksCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Manage commands run on worktree and merge events",
		Long: `Hooks live in .arbor/hooks.yaml under one of the events worktree_add,
worktree_remove or merge_finished. They only run after their current
content was trusted with 'arbor hooks trust'.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show configured hooks and whether they are trusted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			cfg, err := c.Hooks.Load()
			if err != nil {
				return err
			}
			trusted, err := c.Hooks.Trusted(cfg)
			if err != nil {
				return err
			}
			data := map[string]interface{}{"hooks": cfg.Hooks, "trusted": trusted}
			return output(data, func() {
				if cfg.IsEmpty() {
					ui.Info("No hooks configured")
					return
				}
				for _, event := range hooks.Events() {
					list := cfg.GetHooksForEvent(event)
					if len(list) == 0 {
						continue
					}
					ui.PrintSectionHeader(ui.HookIcon, string(event), len(list))
					tbl := ui.NewTable("NAME", "RUN", "ON ERROR", "TIMEOUT")
					for _, h := range list {
						run := h.Command
						if run == "" {
							run = h.Script
						}
						timeout := h.Timeout
						if timeout == "" {
							timeout = hooks.DefaultTimeout.String()
						}
						tbl.AddRow(h.Name, run, string(h.OnError), timeout)
					}
					tbl.Print()
				}
				if !trusted {
					ui.Warning("Hooks are not trusted; review them and run 'arbor hooks trust'")
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "trust",
		Short: "Trust the current hooks configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			cfg, err := c.Hooks.Load()
			if err != nil {
				return err
			}
			trust, err := c.Hooks.Trust(cfg)
			if err != nil {
				return err
			}
			return output(trust, func() { ui.Success("Trusted hooks (%s)", trust.Hash[:12]) })
		},
	})

	var dryRun bool
	runCmd := &cobra.Command{
		Use:   "run <event>",
		Short: "Run the hooks of an event for the current checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event := hooks.Event(args[0])
			known := false
			for _, ev := range hooks.Events() {
				known = known || ev == event
			}
			if !known {
				return fmt.Errorf("unknown hook event %q", args[0])
			}

			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			cfg, err := c.Hooks.Load()
			if err != nil {
				return err
			}
			trusted, err := c.Hooks.Trusted(cfg)
			if err != nil {
				return err
			}
			if !trusted && !dryRun && len(cfg.GetHooksForEvent(event)) > 0 {
				return hooks.ErrNotTrusted
			}
			checkout := e.resolve("")
			if root, ok := c.Paths.GetRoot(checkout); ok {
				checkout = root
			}
			wt := c.Worktrees.Lookup(cmd.Context(), checkout)

			vars := hooks.Vars{Dir: wt.Path, Path: wt.Path, Branch: wt.Ref, Rev: wt.Rev, RepoRoot: c.ProjectRoot}
			results, err := c.Hooks.WithDryRun(dryRun).ExecuteHooks(cmd.Context(), event, cfg.GetHooksForEvent(event), vars)
			type row struct {
				Name     string `json:"name"`
				ExitCode int    `json:"exit_code"`
				Duration string `json:"duration"`
				Output   string `json:"output,omitempty"`
				Error    string `json:"error,omitempty"`
			}
			rows := make([]row, 0, len(results))
			for _, r := range results {
				rr := row{Name: r.Hook.Name, ExitCode: r.ExitCode, Duration: r.EndTime.Sub(r.StartTime).Round(time.Millisecond).String(), Output: r.Output}
				if r.Error != nil {
					rr.Error = r.Error.Error()
				}
				rows = append(rows, rr)
			}
			if outErr := output(rows, func() {
				if len(rows) == 0 {
					ui.Info("No %s hooks configured", event)
					return
				}
				for _, r := range rows {
					if r.Error != "" {
						ui.Error("%s: %s", r.Name, r.Error)
					} else {
						ui.Success("%s (%s)", r.Name, r.Duration)
					}
					if r.Output != "" {
						ui.OutputLine("%s", ui.DimStyle.Render(r.Output))
					}
				}
			}); outErr != nil {
				return outErr
			}
			return err
		},
	}
	runCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would run without running it")
	cmd.AddCommand(runCmd)

	return cmd
}
