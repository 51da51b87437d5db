package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Write modes for local status changes.
const (
	// WriteModeChannel emits the change as a channel event with no
	// acknowledgement.
	WriteModeChannel = "channel"

	// WriteModeREST sends the change as an acknowledged REST call and
	// reverts the optimistic value when it fails.
	WriteModeREST = "rest"
)

// Guard scopes for echo suppression.
const (
	// GuardScopeField suppresses echoes per (order, field).
	GuardScopeField = "field"

	// GuardScopeResource suppresses echoes for every field of the order
	// while any local edit is guarded.
	GuardScopeResource = "resource"
)

// APIConfig holds the REST backend settings.
type APIConfig struct {
	// BaseURL is the root of the REST API, including the /api prefix.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// MaxRetries is how often a rate-limited request is retried.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// ChannelConfig holds the real-time channel settings.
type ChannelConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// SyncConfig holds order synchronization settings.
type SyncConfig struct {
	WriteMode       string `mapstructure:"write_mode" yaml:"write_mode"`
	GuardScope      string `mapstructure:"guard_scope" yaml:"guard_scope"`
	PollIntervalSec int    `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// StoreConfig locates the local cache database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls the console's own log output.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Channel ChannelConfig `mapstructure:"channel" yaml:"channel"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ConfigDir returns ~/.config/order-console, or the working directory
// when the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "order-console")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/order-console/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:2000/api",
			TimeoutSec: 30,
			MaxRetries: 3,
		},
		Channel: ChannelConfig{
			URL: "ws://localhost:2000/ws",
		},
		Sync: SyncConfig{
			WriteMode:       WriteModeChannel,
			GuardScope:      GuardScopeField,
			PollIntervalSec: 60,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
		Store: StoreConfig{
			Path: filepath.Join(ConfigDir(), "cache.db"),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(ConfigDir(), "console.log"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ORDER_CONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout_sec", def.API.TimeoutSec)
	v.SetDefault("api.max_retries", def.API.MaxRetries)
	v.SetDefault("channel.url", def.Channel.URL)
	v.SetDefault("sync.write_mode", def.Sync.WriteMode)
	v.SetDefault("sync.guard_scope", def.Sync.GuardScope)
	v.SetDefault("sync.poll_interval_sec", def.Sync.PollIntervalSec)
	v.SetDefault("display.theme", def.Display.Theme)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects unknown enum values and non-positive intervals.
func (c *AppConfig) Validate() error {
	switch c.Sync.WriteMode {
	case WriteModeChannel, WriteModeREST:
	default:
		return fmt.Errorf("sync.write_mode must be %q or %q, got %q",
			WriteModeChannel, WriteModeREST, c.Sync.WriteMode)
	}

	switch c.Sync.GuardScope {
	case GuardScopeField, GuardScopeResource:
	default:
		return fmt.Errorf("sync.guard_scope must be %q or %q, got %q",
			GuardScopeField, GuardScopeResource, c.Sync.GuardScope)
	}

	if c.Sync.PollIntervalSec <= 0 {
		c.Sync.PollIntervalSec = 60
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = 30
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("channel", cfg.Channel)
	v.Set("sync", cfg.Sync)
	v.Set("display", cfg.Display)
	v.Set("store", cfg.Store)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
