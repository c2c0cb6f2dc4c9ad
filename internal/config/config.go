package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultLookbackDays   = 365
	DefaultRecommendLimit = 20
	DefaultSyncWorkers    = 4
	DefaultSyncQPS        = 5
	DefaultDebounceSecond = 2
)

// Config represents the outreach configuration
type Config struct {
	Owner     OwnerConfig     `yaml:"owner"`
	Google    GoogleConfig    `yaml:"google"`
	Sync      SyncConfig      `yaml:"sync"`
	Recommend RecommendConfig `yaml:"recommend"`
	Watch     WatchConfig     `yaml:"watch"`
	Log       LogConfig       `yaml:"log"`
}

// OwnerConfig identifies the account owner whose data is imported
type OwnerConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// GoogleConfig holds the OAuth client used for Gmail and Calendar
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

type SyncConfig struct {
	LookbackDays int     `yaml:"lookback_days"`
	Workers      int     `yaml:"workers"`
	QPS          float64 `yaml:"qps"`
}

type RecommendConfig struct {
	Limit int `yaml:"limit"`
}

// WatchConfig controls the backup drop directory watcher.
type WatchConfig struct {
	Dir             string `yaml:"dir"`
	DebounceSeconds int    `yaml:"debounce_seconds"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Debounce returns the watcher debounce as a duration.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceSeconds) * time.Second
}

func (c *Config) withDefaults() {
	if strings.TrimSpace(c.Owner.ID) == "" {
		c.Owner.ID = "default"
	}
	if c.Google.RedirectURL == "" {
		c.Google.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	}
	if c.Sync.LookbackDays <= 0 {
		c.Sync.LookbackDays = DefaultLookbackDays
	}
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = DefaultSyncWorkers
	}
	if c.Sync.QPS <= 0 {
		c.Sync.QPS = DefaultSyncQPS
	}
	if c.Recommend.Limit <= 0 {
		c.Recommend.Limit = DefaultRecommendLimit
	}
	if c.Watch.DebounceSeconds <= 0 {
		c.Watch.DebounceSeconds = DefaultDebounceSecond
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OUTREACH_OWNER_ID"); v != "" {
		c.Owner.ID = v
	}
	if v := os.Getenv("OUTREACH_GOOGLE_CLIENT_ID"); v != "" {
		c.Google.ClientID = v
	}
	if v := os.Getenv("OUTREACH_GOOGLE_CLIENT_SECRET"); v != "" {
		c.Google.ClientSecret = v
	}
	if v := os.Getenv("OUTREACH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// GetConfigDir returns the XDG-compliant config directory
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("OUTREACH_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "outreach"), nil
}

// GetDataDir returns the platform-specific data directory
func GetDataDir() (string, error) {
	if override := os.Getenv("OUTREACH_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Outreach"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "outreach"), nil
	}

	return filepath.Join(home, ".local", "share", "outreach"), nil
}

// Load loads config from the config file. A missing file yields defaults.
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	var cfg Config
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.withDefaults()
	return &cfg, nil
}

// Save saves the config to the config file
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Client secret lives in this file.
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
