package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aki/arbor/internal/cli/ui"
	"github.com/aki/arbor/internal/core/config"
)

// configSetters maps a settable key to the function applying its value
var configSetters = map[string]func(cfg *config.Config, value string) error{
	"git.binary": func(cfg *config.Config, v string) error {
		cfg.Git.Binary = v
		return nil
	},
	"lock.timeout": func(cfg *config.Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		cfg.Lock.Timeout = d
		return nil
	},
	"prune.expire": func(cfg *config.Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		cfg.Prune.Expire = d
		return nil
	},
	"log.level": func(cfg *config.Config, v string) error {
		cfg.Log.Level = v
		return nil
	},
	"log.format": func(cfg *config.Config, v string) error {
		cfg.Log.Format = v
		return nil
	},
	"output.format": func(cfg *config.Config, v string) error {
		cfg.Output.Format = v
		return nil
	},
	"ignore": func(cfg *config.Config, v string) error {
		cfg.Ignore = append(cfg.Ignore, v)
		return nil
	},
}

func configKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit .arbor/config.yaml",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			if ui.GlobalFormatter.IsJSON() {
				return ui.GlobalFormatter.Output(c.Config)
			}
			data, err := yaml.Marshal(c.Config)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			ui.OutputLine("# %s", c.ConfigManager.GetConfigPath())
			ui.OutputLine("%s", strings.TrimRight(string(data), "\n"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			path := c.ConfigManager.GetConfigPath()
			if c.ConfigManager.IsInitialized() {
				ui.Info("Configuration already exists at %s", path)
				return nil
			}
			if err := c.ConfigManager.Save(cmd.Context(), config.DefaultConfig()); err != nil {
				return err
			}
			ui.Success("Wrote %s", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Keys: " + strings.Join(configKeys(), ", ") + ". Setting ignore appends a pattern.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, ok := configSetters[args[0]]
			if !ok {
				return fmt.Errorf("unknown config key %q (valid: %s)", args[0], strings.Join(configKeys(), ", "))
			}
			c, err := e.container(cmd)
			if err != nil {
				return err
			}
			err = c.ConfigManager.Update(cmd.Context(), func(cfg *config.Config) error {
				if err := set(cfg, args[1]); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return nil
			})
			if err != nil {
				return err
			}
			ui.Success("Set %s = %s", args[0], args[1])
			return nil
		},
	})

	return cmd
}
