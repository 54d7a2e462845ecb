// Package common provides shared utilities for vire-engine.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for vire-engine.
type Config struct {
	Environment string       `toml:"environment"`
	Server      ServerConfig `toml:"server"`
	Engine      EngineConfig `toml:"engine"`
	Logging     LoggingConfig `toml:"logging"`
	Auth        AuthConfig   `toml:"auth"`
}

// ServerConfig holds HTTP server configuration for the monitoring dashboard.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// EngineConfig holds the in-memory storage engine's tunables.
type EngineConfig struct {
	// StringComparer selects the comparator used for collection keys, queue
	// names and sorted-set members: "ordinal" (byte-wise) or
	// "ordinal_ignore_case". Hash field names are always matched byte-wise.
	StringComparer string `toml:"string_comparer"`
	// MaxExpirationTime caps how far into the future an entry's expiry may
	// be set, expressed as a duration string (e.g. "24h"). "0" (the
	// default) leaves expirations uncapped.
	MaxExpirationTime string `toml:"max_expiration_time"`
	// MaxStateHistoryLength caps how many state-transition records a job
	// retains before the oldest are trimmed.
	MaxStateHistoryLength int `toml:"max_state_history_length"`
	// CommandTimeout bounds how long a caller will wait for the dispatcher
	// to apply a submitted command, as a duration string.
	CommandTimeout string `toml:"command_timeout"`
	// InboxCapacity sizes the dispatcher's buffered command channel.
	InboxCapacity int `toml:"inbox_capacity"`
	// EvictionInterval controls how often the evictor sweeps expired
	// entries, as a duration string.
	EvictionInterval string `toml:"eviction_interval"`
	// MirrorEnabled turns on the best-effort durable mirror.
	MirrorEnabled bool `toml:"mirror_enabled"`
	// MirrorPath is the on-disk path for the mirror's internal store.
	MirrorPath string `toml:"mirror_path"`
}

// GetMaxExpirationTime parses MaxExpirationTime, defaulting to 0
// (uncapped).
func (c *EngineConfig) GetMaxExpirationTime() time.Duration {
	d, err := time.ParseDuration(c.MaxExpirationTime)
	if err != nil {
		return 0
	}
	return d
}

// GetCommandTimeout parses CommandTimeout, defaulting to 10s.
func (c *EngineConfig) GetCommandTimeout() time.Duration {
	d, err := time.ParseDuration(c.CommandTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetEvictionInterval parses EvictionInterval, defaulting to 5s.
func (c *EngineConfig) GetEvictionInterval() time.Duration {
	d, err := time.ParseDuration(c.EvictionInterval)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// AuthConfig holds the dashboard's bearer-token authentication settings.
type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	TokenExpiry string `toml:"token_expiry"` // duration string, default "24h"
	AdminToken  string `toml:"admin_token"`  // static bootstrap token, exchanged for a JWT at POST /api/auth/token
}

// GetTokenExpiry parses and returns the token expiry duration.
func (c *AuthConfig) GetTokenExpiry() time.Duration {
	d, err := time.ParseDuration(c.TokenExpiry)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level" mapstructure:"level"`
	Format     string   `toml:"format" mapstructure:"format"`
	Outputs    []string `toml:"outputs" mapstructure:"outputs"`
	FilePath   string   `toml:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int      `toml:"max_backups" mapstructure:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Engine: EngineConfig{
			StringComparer:        "ordinal",
			MaxExpirationTime:     "0",
			MaxStateHistoryLength: 25,
			CommandTimeout:        "10s",
			InboxCapacity:         1024,
			EvictionInterval:      "5s",
			MirrorEnabled:         false,
			MirrorPath:            "data/mirror",
		},
		Auth: AuthConfig{
			JWTSecret:   "dev-jwt-secret-change-in-production",
			TokenExpiry: "24h",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console", "file"},
			FilePath:   "./logs/vire-engine.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Apply environment overrides
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIRE_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("VIRE_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("VIRE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("VIRE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Engine overrides
	if v := os.Getenv("VIRE_ENGINE_STRING_COMPARER"); v != "" {
		config.Engine.StringComparer = v
	}
	if v := os.Getenv("VIRE_ENGINE_MAX_EXPIRATION_TIME"); v != "" {
		config.Engine.MaxExpirationTime = v
	}
	if v := os.Getenv("VIRE_ENGINE_MAX_STATE_HISTORY_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.MaxStateHistoryLength = n
		}
	}
	if v := os.Getenv("VIRE_ENGINE_COMMAND_TIMEOUT"); v != "" {
		config.Engine.CommandTimeout = v
	}
	if v := os.Getenv("VIRE_ENGINE_INBOX_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.InboxCapacity = n
		}
	}
	if v := os.Getenv("VIRE_ENGINE_EVICTION_INTERVAL"); v != "" {
		config.Engine.EvictionInterval = v
	}
	if v := os.Getenv("VIRE_ENGINE_MIRROR_ENABLED"); v != "" {
		config.Engine.MirrorEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("VIRE_ENGINE_MIRROR_PATH"); v != "" {
		config.Engine.MirrorPath = v
	}

	// Auth overrides
	if v := os.Getenv("VIRE_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("VIRE_AUTH_TOKEN_EXPIRY"); v != "" {
		config.Auth.TokenExpiry = v
	}
	if v := os.Getenv("VIRE_AUTH_ADMIN_TOKEN"); v != "" {
		config.Auth.AdminToken = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
