package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/rbacabac/pkg/attributes"
	"github.com/platinummonkey/rbacabac/pkg/audit"
)

// Config holds all authorization configuration
type Config struct {
	// ServiceName is the consuming service; attribute bundles are scoped to it
	ServiceName string `yaml:"service_name"`

	// Redis is the shared attribute cache and invalidation channel
	Redis attributes.RedisConfig `yaml:"redis"`

	// Cache tunes key layout, TTLs and the in-process cache
	Cache attributes.StoreConfig `yaml:"cache"`

	// Loader bounds reloads from the role source
	Loader LoaderConfig `yaml:"loader"`

	// RoleSource is the identity provider database
	RoleSource RoleSourceConfig `yaml:"role_source"`

	// Audit configures decision recording
	Audit AuditConfig `yaml:"audit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// LoaderConfig holds attribute loader settings
type LoaderConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// RoleSourceConfig holds the identity provider database settings
type RoleSourceConfig struct {
	PostgresURL  string `yaml:"postgres_url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// AuditConfig holds audit settings
type AuditConfig struct {
	Enabled     bool                 `yaml:"enabled"`
	DenyOnly    bool                 `yaml:"deny_only"`
	MaxInFlight int                  `yaml:"max_in_flight"`
	File        audit.FileSinkConfig `yaml:"file"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Redis:  attributes.DefaultRedisConfig(),
		Cache:  attributes.DefaultStoreConfig(),
		Loader: LoaderConfig{Timeout: attributes.DefaultLoadTimeout},
		RoleSource: RoleSourceConfig{
			MaxOpenConns: 10,
		},
		Audit: AuditConfig{
			MaxInFlight: 256,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := Default()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile loads a YAML configuration file over the defaults, then applies environment overrides
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides cfg with every RBACABAC_* variable that is set
func applyEnv(cfg *Config) {
	cfg.ServiceName = getEnv("RBACABAC_SERVICE_NAME", cfg.ServiceName)

	// Redis config
	cfg.Redis.URL = getEnv("RBACABAC_REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Password = getEnv("RBACABAC_REDIS_PASSWORD", cfg.Redis.Password)
	if redisDB := getEnvInt("RBACABAC_REDIS_DB", -1); redisDB >= 0 {
		cfg.Redis.DB = redisDB
	}
	if maxRetries := getEnvInt("RBACABAC_REDIS_MAX_RETRIES", 0); maxRetries > 0 {
		cfg.Redis.MaxRetries = maxRetries
	}
	if poolSize := getEnvInt("RBACABAC_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.Redis.PoolSize = poolSize
	}
	cfg.Redis.ReadTimeout = getEnvDuration("RBACABAC_REDIS_READ_TIMEOUT", cfg.Redis.ReadTimeout)

	// Cache config
	cfg.Cache.KeyPrefix = getEnv("RBACABAC_CACHE_PREFIX", cfg.Cache.KeyPrefix)
	cfg.Cache.Channel = getEnv("RBACABAC_CACHE_CHANNEL", cfg.Cache.Channel)
	cfg.Cache.TTL = getEnvDuration("RBACABAC_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.LocalSize = getEnvInt("RBACABAC_LOCAL_CACHE_SIZE", cfg.Cache.LocalSize)
	cfg.Cache.LocalTTL = getEnvDuration("RBACABAC_LOCAL_CACHE_TTL", cfg.Cache.LocalTTL)

	cfg.Loader.Timeout = getEnvDuration("RBACABAC_LOADER_TIMEOUT", cfg.Loader.Timeout)

	cfg.RoleSource.PostgresURL = getEnv("RBACABAC_ROLE_SOURCE_URL", cfg.RoleSource.PostgresURL)
	cfg.RoleSource.MaxOpenConns = getEnvInt("RBACABAC_ROLE_SOURCE_MAX_CONNS", cfg.RoleSource.MaxOpenConns)

	// Audit config
	cfg.Audit.Enabled = getEnvBool("RBACABAC_AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Audit.DenyOnly = getEnvBool("RBACABAC_AUDIT_DENY_ONLY", cfg.Audit.DenyOnly)
	cfg.Audit.File.BasePath = getEnv("RBACABAC_AUDIT_PATH", cfg.Audit.File.BasePath)

	cfg.Observability.LogLevel = getEnv("RBACABAC_LOG_LEVEL", cfg.Observability.LogLevel)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Cache.KeyPrefix == "" {
		return fmt.Errorf("cache key prefix is required")
	}
	if c.Cache.Channel == "" {
		return fmt.Errorf("invalidation channel is required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Cache.LocalSize < 0 {
		return fmt.Errorf("local cache size cannot be negative")
	}
	if c.Cache.LocalSize > 0 && c.Cache.LocalTTL > c.Cache.TTL {
		return fmt.Errorf("local cache TTL (%s) cannot exceed cache TTL (%s)", c.Cache.LocalTTL, c.Cache.TTL)
	}

	if c.Loader.Timeout <= 0 {
		return fmt.Errorf("loader timeout must be positive")
	}

	if c.Audit.File.MaxFiles < 0 {
		return fmt.Errorf("audit max files cannot be negative")
	}
	if c.Audit.MaxInFlight <= 0 {
		return fmt.Errorf("audit max in-flight must be positive")
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Observability.LogLevel)
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
