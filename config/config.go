// Package config loads service configuration from defaults, an optional
// config file, and environment variables (highest precedence). A .env
// file in the working directory is honored for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	CacheDir    string `mapstructure:"cache_dir"`
	CatalogURL  string `mapstructure:"catalog_url"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // console or json

	Workers     int    `mapstructure:"workers"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	// Schedule is the cron spec for the schedule command.
	Schedule string `mapstructure:"schedule"`

	HTTP HTTPConfig `mapstructure:"http"`
}

// HTTPConfig tunes the portal HTTP client.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	MaxRetries        int     `mapstructure:"max_retries"`
	InitialBackoffMS  int     `mapstructure:"initial_backoff_ms"`
	MaxBackoffMS      int     `mapstructure:"max_backoff_ms"`
}

// Timeout returns the client timeout as a duration.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// InitialBackoff returns the first retry delay.
func (h HTTPConfig) InitialBackoff() time.Duration {
	return time.Duration(h.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff returns the retry delay ceiling.
func (h HTTPConfig) MaxBackoff() time.Duration {
	return time.Duration(h.MaxBackoffMS) * time.Millisecond
}

// Load reads the configuration. path optionally names a config file;
// when empty, only defaults and the environment apply.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("database_url", "openprices.db")
	v.SetDefault("cache_dir", "data")
	v.SetDefault("catalog_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("workers", 1)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("schedule", "0 6 * * *")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.requests_per_second", 4)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.initial_backoff_ms", 500)
	v.SetDefault("http.max_backoff_ms", 10000)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url must not be empty")
	}
	return &cfg, nil
}
