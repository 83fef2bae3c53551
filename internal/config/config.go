// Package config handles configuration loading for finmarket.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Remote  RemoteConfig  `mapstructure:"remote"  yaml:"remote" json:"remote"`
	Feed    FeedConfig    `mapstructure:"feed"    yaml:"feed" json:"feed"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage" json:"storage"`
	Chart   ChartConfig   `mapstructure:"chart"   yaml:"chart" json:"chart"`
	API     APIConfig     `mapstructure:"api"     yaml:"api" json:"api"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`

	file string // config file in use, empty when running on defaults
}

// File returns the path of the config file that was loaded, or "" when no
// file was found.
func (c *Config) File() string { return c.file }

// RemoteConfig holds the news/insight service endpoint settings.
type RemoteConfig struct {
	BaseURL   string        `mapstructure:"base_url"   yaml:"base_url" json:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"    yaml:"timeout" json:"timeout"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
	APIToken  string        `mapstructure:"api_token"  yaml:"api_token" json:"-"`
}

// FeedConfig holds news feed defaults.
type FeedConfig struct {
	DefaultCategory string   `mapstructure:"default_category" yaml:"default_category" json:"default_category"` // "all", "market", "tech", "crypto"
	Basket          []string `mapstructure:"basket"           yaml:"basket" json:"basket"`                     // symbols sent for insights when no favorites exist
	Limit           int      `mapstructure:"limit"            yaml:"limit" json:"limit"`
}

// StorageConfig selects the key-value backend used for favorites.
type StorageConfig struct {
	Driver        string `mapstructure:"driver"         yaml:"driver" json:"driver"`         // "sqlite", "redis", "memory"
	Path          string `mapstructure:"path"           yaml:"path" json:"path"`
	RedisAddr     string `mapstructure:"redis_addr"     yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password" json:"-"`
	RedisDB       int    `mapstructure:"redis_db"       yaml:"redis_db" json:"redis_db"`
	KeyPrefix     string `mapstructure:"key_prefix"     yaml:"key_prefix" json:"key_prefix"`
}

// ChartConfig holds the embedded chart widget settings.
type ChartConfig struct {
	Exchange  string `mapstructure:"exchange"   yaml:"exchange" json:"exchange"`
	Locale    string `mapstructure:"locale"     yaml:"locale" json:"locale"`
	DateRange string `mapstructure:"date_range" yaml:"date_range" json:"date_range"`
	Theme     string `mapstructure:"theme"      yaml:"theme" json:"theme"`
}

// APIConfig holds the local HTTP server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host" json:"host"`
	Port        int      `mapstructure:"port"         yaml:"port" json:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level" json:"level"`   // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format" json:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.finmarket/config.yaml (home directory)
//  3. /etc/finmarket/config.yaml (system)
//
// Environment variables override config file values.
// Format: FINMARKET_<SECTION>_<KEY>, e.g., FINMARKET_REMOTE_BASE_URL
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".finmarket"))
	v.AddConfigPath("/etc/finmarket")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FINMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.file = v.ConfigFileUsed()
	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check on its own.
func (c *Config) Validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive, got %s", c.Remote.Timeout)
	}
	switch c.Storage.Driver {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.Feed.DefaultCategory) {
	case "", "all", "market", "tech", "crypto":
	default:
		return fmt.Errorf("feed.default_category: unknown category %q", c.Feed.DefaultCategory)
	}
	return nil
}

// Addr returns the host:port the API server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Remote service defaults
	v.SetDefault("remote.base_url", "http://localhost:8000")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("remote.user_agent", "finmarket/dev")

	// Feed defaults
	v.SetDefault("feed.default_category", "all")
	v.SetDefault("feed.basket", []string{"AAPL", "TSLA"})
	v.SetDefault("feed.limit", 10)

	// Storage defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "") // resolved under the XDG data dir
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.key_prefix", "finmarket:")

	// Chart defaults
	v.SetDefault("chart.exchange", "NASDAQ")
	v.SetDefault("chart.locale", "br")
	v.SetDefault("chart.date_range", "12M")
	v.SetDefault("chart.theme", "dark")

	// API defaults
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8090)
	v.SetDefault("api.cors_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("FINMARKET_REMOTE_API_TOKEN"); key != "" {
		cfg.Remote.APIToken = key
	}
	if key := os.Getenv("FINMARKET_STORAGE_REDIS_PASSWORD"); key != "" {
		cfg.Storage.RedisPassword = key
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
