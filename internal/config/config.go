package config

import "time"

// Config represents the complete application configuration.
//
// Values are layered: built-in defaults, then the YAML config file, then
// OCTOLENS_* environment variables (with .env/.env.local loaded first), then
// command-line flags bound by the CLI.
type Config struct {
	GitHub  GitHubConfig  `mapstructure:"github"`
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// RateLimitMargin is the usable fraction (0-1] of each GitHub window.
	RateLimitMargin float64 `mapstructure:"rate_limit_margin"`
}

// GitHubConfig contains API client settings
type GitHubConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// CacheConfig controls the conditional-request response cache.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// TTL is how long a response is served without revalidation.
	TTL time.Duration `mapstructure:"ttl"`

	// MaxAge is how long entries are kept for revalidation before purging.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format selects the server log encoding: json or console
	Format string `mapstructure:"format"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether /metrics is exposed by the server
	Enabled bool `mapstructure:"enabled"`
}
