// Package config provides configuration management for arbor.
package config

import "time"

// Config is the document stored in .arbor/config.yaml
type Config struct {
	Version string       `yaml:"version"`
	Git     GitConfig    `yaml:"git"`
	Lock    LockConfig   `yaml:"lock"`
	Prune   PruneConfig  `yaml:"prune"`
	Log     LogConfig    `yaml:"log"`
	Output  OutputConfig `yaml:"output"`
	// Ignore holds extra gitignore-style patterns for conflict scans
	Ignore []string `yaml:"ignore,omitempty"`
}

// GitConfig configures the external git client used for merges
type GitConfig struct {
	Binary string `yaml:"binary"`
}

// LockConfig configures the repository writer lock
type LockConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// PruneConfig configures worktree pruning
type PruneConfig struct {
	// Expire limits pruning to metadata older than this. Zero prunes everything stale.
	Expire time.Duration `yaml:"expire"`
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OutputConfig configures CLI output
type OutputConfig struct {
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file exists
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	if cfg.Git.Binary == "" {
		cfg.Git.Binary = "git"
	}
	if cfg.Lock.Timeout == 0 {
		cfg.Lock.Timeout = 5 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = "pretty"
	}
}
