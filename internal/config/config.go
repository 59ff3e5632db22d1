package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ramonehamilton/binderkeep/internal/version"
)

// Config represents the application configuration.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Scryfall ScryfallConfig `toml:"scryfall"`
	Import   ImportConfig   `toml:"import"`
	Pricing  PricingConfig  `toml:"pricing"`
	Server   ServerConfig   `toml:"server"`
	Watch    WatchConfig    `toml:"watch"`
	Log      LogConfig      `toml:"log"`
}

// StorageConfig contains database settings.
type StorageConfig struct {
	Path        string `toml:"path"`          // SQLite file, or ":memory:"
	SetCacheTTL string `toml:"set_cache_ttl"` // How long the cached set list is trusted
}

// ScryfallConfig contains card database client settings.
type ScryfallConfig struct {
	BaseURL      string `toml:"base_url"`
	UserAgent    string `toml:"user_agent"`
	RateInterval string `toml:"rate_interval"` // Minimum spacing between requests (e.g., "100ms")
	Timeout      string `toml:"timeout"`
	MaxRetries   int    `toml:"max_retries"`
}

// ImportConfig contains CSV import settings.
type ImportConfig struct {
	BatchSize        int     `toml:"batch_size"`
	ItemDelay        string  `toml:"item_delay"`
	BatchDelay       string  `toml:"batch_delay"`
	NotFound         string  `toml:"not_found"` // "placeholder" or "drop"
	DefaultFormat    string  `toml:"default_format"`
	PlaceholderPrice float64 `toml:"placeholder_price"`
}

// PricingConfig contains price annotation settings.
type PricingConfig struct {
	EURToUSD float64 `toml:"eur_to_usd"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// WatchConfig contains inbox watcher settings.
type WatchConfig struct {
	InboxDir     string `toml:"inbox_dir"`
	BinderID     string `toml:"binder_id"`
	PollInterval string `toml:"poll_interval"` // Backup scan interval (e.g., "30s")
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json or console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:        filepath.Join(dataDir(), "binderkeep.db"),
			SetCacheTTL: "24h",
		},
		Scryfall: ScryfallConfig{
			BaseURL:      "https://api.scryfall.com",
			UserAgent:    version.UserAgent(),
			RateInterval: "100ms",
			Timeout:      "30s",
			MaxRetries:   3,
		},
		Import: ImportConfig{
			BatchSize:     8,
			ItemDelay:     "75ms",
			BatchDelay:    "500ms",
			NotFound:      "placeholder",
			DefaultFormat: "auto",
		},
		Pricing: PricingConfig{
			EURToUSD: 1.08,
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:*"},
		},
		Watch: WatchConfig{
			InboxDir:     filepath.Join(dataDir(), "inbox"),
			PollInterval: "30s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func dataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".binderkeep"
	}
	return filepath.Join(homeDir, ".binderkeep")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(dataDir(), "config.toml")
}

// Load loads the configuration from path. Returns default config if the file
// doesn't exist. Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path cannot be empty")
	}

	durations := map[string]string{
		"set cache TTL":       c.Storage.SetCacheTTL,
		"scryfall rate":       c.Scryfall.RateInterval,
		"scryfall timeout":    c.Scryfall.Timeout,
		"import item delay":   c.Import.ItemDelay,
		"import batch delay":  c.Import.BatchDelay,
		"watch poll interval": c.Watch.PollInterval,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if d < 0 {
			return fmt.Errorf("%s cannot be negative: %s", name, value)
		}
	}

	if c.Scryfall.MaxRetries < 0 {
		return fmt.Errorf("scryfall max retries cannot be negative: %d", c.Scryfall.MaxRetries)
	}

	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("import batch size must be positive: %d", c.Import.BatchSize)
	}

	switch c.Import.NotFound {
	case "placeholder", "drop":
	default:
		return fmt.Errorf("invalid not_found policy %q", c.Import.NotFound)
	}

	if c.Import.PlaceholderPrice < 0 {
		return fmt.Errorf("placeholder price cannot be negative: %v", c.Import.PlaceholderPrice)
	}

	if c.Pricing.EURToUSD <= 0 {
		return fmt.Errorf("eur_to_usd must be positive: %v", c.Pricing.EURToUSD)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}

	return nil
}

// GetSetCacheTTL returns the set cache TTL as a duration.
func (c *Config) GetSetCacheTTL() time.Duration {
	return mustDuration(c.Storage.SetCacheTTL)
}

// GetRateInterval returns the Scryfall request spacing as a duration.
func (c *Config) GetRateInterval() time.Duration {
	return mustDuration(c.Scryfall.RateInterval)
}

// GetTimeout returns the Scryfall request timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	return mustDuration(c.Scryfall.Timeout)
}

// GetItemDelay returns the per-item import delay as a duration.
func (c *Config) GetItemDelay() time.Duration {
	return mustDuration(c.Import.ItemDelay)
}

// GetBatchDelay returns the import batch delay as a duration.
func (c *Config) GetBatchDelay() time.Duration {
	return mustDuration(c.Import.BatchDelay)
}

// GetWatchPollInterval returns the inbox scan interval as a duration.
func (c *Config) GetWatchPollInterval() time.Duration {
	return mustDuration(c.Watch.PollInterval)
}

// mustDuration parses a duration already checked by Validate; invalid input
// yields zero so callers fall back to their own defaults.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
