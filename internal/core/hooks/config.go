package hooks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aki/arbor/internal/storage"
)

const (
	// HooksConfigFile is the name of the hooks configuration file
	HooksConfigFile = "hooks.yaml"
	// TrustFile is the name of the trust information file
	TrustFile = ".hooks-trust.yaml"
)

// LoadConfig loads the hooks configuration from configDir. A missing file
// yields an empty configuration.
func LoadConfig(fs storage.Reader, configDir string) (*Config, error) {
	data, err := fs.ReadFile(filepath.Join(configDir, HooksConfigFile))
	if err != nil {
		if storage.IsNotExist(err) {
			return &Config{Hooks: make(map[string][]Hook)}, nil
		}
		return nil, fmt.Errorf("failed to read hooks config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse hooks config: %w", err)
	}
	if config.Hooks == nil {
		config.Hooks = make(map[string][]Hook)
	}

	for event, hooks := range config.Hooks {
		for i := range hooks {
			if hooks[i].OnError == "" {
				hooks[i].OnError = ErrorStrategyWarn
			}
		}
		config.Hooks[event] = hooks
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves the hooks configuration to configDir
func SaveConfig(fs storage.Storage, configDir string, config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal hooks config: %w", err)
	}
	if err := fs.WriteFile(filepath.Join(configDir, HooksConfigFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write hooks config: %w", err)
	}
	return nil
}

// Validate checks event names, commands and timeouts
func (c *Config) Validate() error {
	known := make(map[string]bool)
	for _, e := range Events() {
		known[string(e)] = true
	}
	for event, hooks := range c.Hooks {
		if !known[event] {
			return fmt.Errorf("unknown hook event %q", event)
		}
		for i, h := range hooks {
			if strings.TrimSpace(h.Command) == "" && strings.TrimSpace(h.Script) == "" {
				return fmt.Errorf("hooks.%s[%d]: hook must have either command or script", event, i)
			}
			if h.Timeout != "" {
				if _, err := time.ParseDuration(h.Timeout); err != nil {
					return fmt.Errorf("hooks.%s[%d]: invalid timeout %q", event, i, h.Timeout)
				}
			}
			switch h.OnError {
			case "", ErrorStrategyFail, ErrorStrategyWarn, ErrorStrategyIgnore:
			default:
				return fmt.Errorf("hooks.%s[%d]: unknown on_error %q", event, i, h.OnError)
			}
		}
	}
	return nil
}

// GetHooksForEvent returns hooks configured for a specific event
func (c *Config) GetHooksForEvent(event Event) []Hook {
	if c.Hooks == nil {
		return nil
	}
	return c.Hooks[string(event)]
}

// IsEmpty reports whether no event has hooks
func (c *Config) IsEmpty() bool {
	for _, hooks := range c.Hooks {
		if len(hooks) > 0 {
			return false
		}
	}
	return true
}

// CalculateConfigHash calculates SHA256 hash of the configuration
func CalculateConfigHash(config *Config) (string, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config for hashing: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// LoadTrustInfo loads trust information from configDir. It returns nil
// when nothing was trusted yet.
func LoadTrustInfo(fs storage.Reader, configDir string) (*TrustInfo, error) {
	data, err := fs.ReadFile(filepath.Join(configDir, TrustFile))
	if err != nil {
		if storage.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read trust info: %w", err)
	}

	var trust TrustInfo
	if err := yaml.Unmarshal(data, &trust); err != nil {
		return nil, fmt.Errorf("failed to parse trust info: %w", err)
	}
	return &trust, nil
}

// SaveTrustInfo saves trust information to configDir
func SaveTrustInfo(fs storage.Storage, configDir string, trust *TrustInfo) error {
	data, err := yaml.Marshal(trust)
	if err != nil {
		return fmt.Errorf("failed to marshal trust info: %w", err)
	}
	if err := fs.WriteFile(filepath.Join(configDir, TrustFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write trust info: %w", err)
	}
	return nil
}

// IsTrusted checks if the current configuration is trusted
func IsTrusted(fs storage.Reader, configDir string, config *Config) (bool, error) {
	trust, err := LoadTrustInfo(fs, configDir)
	if err != nil || trust == nil {
		return false, err
	}
	currentHash, err := CalculateConfigHash(config)
	if err != nil {
		return false, err
	}
	return trust.Hash == currentHash, nil
}
