package config

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/aki/arbor/internal/core/logger"
)

// ValidateConfig checks the whole configuration
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Git.Binary) == "" {
		return fmt.Errorf("git.binary must not be empty")
	}
	if cfg.Lock.Timeout < 0 {
		return fmt.Errorf("lock.timeout must not be negative: %s", cfg.Lock.Timeout)
	}
	if cfg.Prune.Expire < 0 {
		return fmt.Errorf("prune.expire must not be negative: %s", cfg.Prune.Expire)
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := logger.ParseFormat(cfg.Log.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}
	switch cfg.Output.Format {
	case "", "pretty", "json":
	default:
		return fmt.Errorf("output.format must be pretty or json: %q", cfg.Output.Format)
	}
	for i, p := range cfg.Ignore {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("ignore[%d] is empty", i)
		}
	}
	return nil
}

// IgnorePatterns parses the extra ignore patterns relative to the repository root.
func (c *Config) IgnorePatterns() []gitignore.Pattern {
	patterns := make([]gitignore.Pattern, 0, len(c.Ignore))
	for _, p := range c.Ignore {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	return patterns
}
