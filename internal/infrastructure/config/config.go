package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Nexus Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServiceConfig contains service identity settings.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RedisConfig contains the optional shared revocation cache tier.
// When disabled, revocation lookups fall through from the in-process
// cache straight to the durable store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig contains credential lifecycle settings.
//
// Access and refresh credentials are signed with independent secrets so
// that compromise of one cannot forge the other. Both secrets are
// required and must be at least 32 characters.
type AuthConfig struct {
	// AccessSecret signs short-lived access credentials.
	AccessSecret string `yaml:"access_secret"`

	// RefreshSecret signs long-lived refresh credentials.
	RefreshSecret string `yaml:"refresh_secret"`

	// AccessTokenTTL is the access credential lifetime in minutes. Default 60.
	AccessTokenTTL int `yaml:"access_token_ttl"`

	// RefreshTokenTTL is the refresh credential lifetime in minutes. Default 10080 (7 days).
	RefreshTokenTTL int `yaml:"refresh_token_ttl"`

	// SweepInterval is how often expired revocation entries are purged, in minutes. Default 60.
	SweepInterval int `yaml:"sweep_interval"`

	// AutoRefresh lets the gateway transparently refresh an expired access
	// credential when the request also carries a valid refresh credential.
	AutoRefresh bool `yaml:"auto_refresh"`

	// CookieSecure marks auth cookies Secure. Disable only for local development.
	CookieSecure bool `yaml:"cookie_secure"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains login rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool `yaml:"enabled"`
	WindowMinutes int  `yaml:"window_minutes"`
	MaxAttempts   int  `yaml:"max_attempts"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: NEXUS_SECTION_KEY
// For example: NEXUS_DATABASE_PATH, NEXUS_AUTH_ACCESS_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default credential lifetimes (minutes).
const (
	defaultAccessTTLMinutes  = 60       // 1 hour
	defaultRefreshTTLMinutes = 7 * 1440 // 7 days
	defaultSweepMinutes      = 60       // hourly sweep
)

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "nexus-core",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:        "./data/nexus.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Redis: RedisConfig{
			Enabled: false,
			Address: "localhost:6379",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Auth: AuthConfig{
			AccessTokenTTL:  defaultAccessTTLMinutes,
			RefreshTokenTTL: defaultRefreshTTLMinutes,
			SweepInterval:   defaultSweepMinutes,
			AutoRefresh:     true,
			CookieSecure:    true,
			RateLimit: RateLimitConfig{
				Enabled:       true,
				WindowMinutes: 15,
				MaxAttempts:   5,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NEXUS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("NEXUS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Redis
	if v := os.Getenv("NEXUS_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("NEXUS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// API
	if v := os.Getenv("NEXUS_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("NEXUS_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Auth secrets (IMPORTANT: always set in production)
	if v := os.Getenv("NEXUS_AUTH_ACCESS_SECRET"); v != "" {
		cfg.Auth.AccessSecret = v
	}
	if v := os.Getenv("NEXUS_AUTH_REFRESH_SECRET"); v != "" {
		cfg.Auth.RefreshSecret = v
	}
}

// minSecretLength is the minimum signing secret length. Weak secrets
// would let an attacker forge credentials for any tenant.
const minSecretLength = 32

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Auth.AccessSecret == "" {
		errs = append(errs, "auth.access_secret is required (set NEXUS_AUTH_ACCESS_SECRET environment variable)")
	} else if len(c.Auth.AccessSecret) < minSecretLength {
		errs = append(errs, "auth.access_secret must be at least 32 characters")
	}

	if c.Auth.RefreshSecret == "" {
		errs = append(errs, "auth.refresh_secret is required (set NEXUS_AUTH_REFRESH_SECRET environment variable)")
	} else if len(c.Auth.RefreshSecret) < minSecretLength {
		errs = append(errs, "auth.refresh_secret must be at least 32 characters")
	}

	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, "auth.access_secret and auth.refresh_secret must be independent")
	}

	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, "auth.access_token_ttl must be positive")
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, "auth.refresh_token_ttl must exceed auth.access_token_ttl")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		errs = append(errs, "redis.address is required when redis.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AccessTTL returns the access credential lifetime as a Duration.
func (c *AuthConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Minute
}

// RefreshTTL returns the refresh credential lifetime as a Duration.
func (c *AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Minute
}

// SweepEvery returns the revocation sweep interval as a Duration.
func (c *AuthConfig) SweepEvery() time.Duration {
	return time.Duration(c.SweepInterval) * time.Minute
}

// RateLimitWindow returns the login rate limit window as a Duration.
func (c *AuthConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowMinutes) * time.Minute
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
