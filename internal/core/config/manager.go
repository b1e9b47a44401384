package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aki/arbor/internal/filemanager"
	"github.com/aki/arbor/internal/storage"
)

const (
	// ArborDir is the per-repository metadata directory
	ArborDir = ".arbor"
	// ConfigFile is the configuration filename inside ArborDir
	ConfigFile = "config.yaml"
)

// Manager loads and saves the configuration of one repository.
type Manager struct {
	fs          storage.Storage
	files       *filemanager.Manager[Config]
	projectRoot string
	configPath  string
}

// NewManager creates a Manager for the repository rooted at projectRoot.
func NewManager(fs storage.Storage, locker *filemanager.Locker, projectRoot string) *Manager {
	return &Manager{
		fs:          fs,
		files:       filemanager.NewManager[Config](fs, locker),
		projectRoot: projectRoot,
		configPath:  filepath.Join(projectRoot, ArborDir, ConfigFile),
	}
}

// Load reads and validates the configuration. A missing file yields the defaults.
func (m *Manager) Load(ctx context.Context) (*Config, error) {
	cfg, _, err := m.files.Read(ctx, m.configPath)
	if err != nil {
		if storage.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}
	return cfg, nil
}

// Save validates and writes cfg.
func (m *Manager) Save(ctx context.Context, cfg *Config) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	if err := m.files.Write(ctx, m.configPath, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Update applies fn to the stored configuration under compare-and-swap.
func (m *Manager) Update(ctx context.Context, fn func(*Config) error) error {
	return m.files.Update(ctx, m.configPath, func(cfg *Config) error {
		applyDefaults(cfg)
		if err := fn(cfg); err != nil {
			return err
		}
		return ValidateConfig(cfg)
	})
}

// IsInitialized reports whether a configuration file exists.
func (m *Manager) IsInitialized() bool {
	return m.fs.Exists(m.configPath)
}

// GetConfigPath returns the configuration file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetProjectRoot returns the repository root the manager was created for
func (m *Manager) GetProjectRoot() string {
	return m.projectRoot
}
