package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the Batch Agent Orchestrator
type Config struct {
	// Server configuration
	HTTPPort int    `env:"BAGO_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"BAGO_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// ProjectsFile is an optional YAML file with per-project overrides
	ProjectsFile string `env:"BAGO_PROJECTS_FILE"`

	// Redis configuration
	Redis RedisConfig

	// Delivery configuration
	Delivery DeliveryConfig

	// Orchestration defaults
	Defaults DefaultsConfig

	// Cross-project permissions
	Permissions PermissionsConfig

	// Per-agent rate limiting
	RateLimit RateLimitConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// DeliveryConfig holds default message delivery configuration
type DeliveryConfig struct {
	Provider string `env:"DELIVERY_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"DELIVERY_API_KEY"`

	Model          string        `env:"DELIVERY_MODEL" envDefault:"claude-3-5-sonnet-20241022"`
	MaxTokens      int           `env:"DELIVERY_MAX_TOKENS" envDefault:"4096"`
	RequestTimeout time.Duration `env:"DELIVERY_REQUEST_TIMEOUT" envDefault:"120s"`
}

// DefaultsConfig holds orchestration defaults, overridable per project
type DefaultsConfig struct {
	// MentionTimeout is the default wait for a correlated agent reply
	MentionTimeout time.Duration `env:"BAGO_MENTION_TIMEOUT" envDefault:"30s"`

	// BatchTimeout bounds a whole batch when the request has no global timeout
	BatchTimeout time.Duration `env:"BAGO_BATCH_TIMEOUT" envDefault:"300s"`

	MaxBatchSize         int    `env:"BAGO_MAX_BATCH_SIZE" envDefault:"100"`
	WaitStrategy         string `env:"BAGO_WAIT_STRATEGY" envDefault:"all"`
	MaxConcurrentBatches int    `env:"BAGO_MAX_CONCURRENT_BATCHES" envDefault:"10"`

	// ResponseCleanupInterval is the correlation tracker sweep interval
	ResponseCleanupInterval time.Duration `env:"BAGO_RESPONSE_CLEANUP_INTERVAL" envDefault:"10s"`

	// MaxPendingResponses bounds open correlation tickets
	MaxPendingResponses int `env:"BAGO_MAX_PENDING_RESPONSES" envDefault:"1000"`
}

// CrossProjectMode controls whether messages may cross project boundaries
type CrossProjectMode string

const (
	CrossProjectAll      CrossProjectMode = "all"
	CrossProjectNone     CrossProjectMode = "none"
	CrossProjectExplicit CrossProjectMode = "explicit"
)

// PermissionsConfig holds the cross-project permission policy
type PermissionsConfig struct {
	CrossProjectMode       CrossProjectMode `env:"BAGO_CROSS_PROJECT_MODE" envDefault:"none"`
	BatchOperationsEnabled bool             `env:"BAGO_BATCH_OPERATIONS_ENABLED" envDefault:"true"`
	MaxGlobalConcurrency   int              `env:"BAGO_MAX_GLOBAL_CONCURRENCY" envDefault:"20"`
}

// RateLimitConfig holds per-source-agent batch rate limits
type RateLimitConfig struct {
	Enabled   bool `env:"BAGO_RATE_LIMIT_ENABLED" envDefault:"false"`
	PerMinute int  `env:"BAGO_RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	PerHour   int  `env:"BAGO_RATE_LIMIT_PER_HOUR" envDefault:"600"`
	BurstSize int  `env:"BAGO_RATE_LIMIT_BURST" envDefault:"10"`
}

// TimeoutConfig holds process-level timeout configurations
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate Redis config
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	// Validate orchestration defaults
	if c.Defaults.MaxBatchSize < 1 {
		return fmt.Errorf("max batch size must be at least 1")
	}
	if c.Defaults.MaxPendingResponses < 1 {
		return fmt.Errorf("max pending responses must be at least 1")
	}
	switch c.Defaults.WaitStrategy {
	case "all", "any", "none":
	default:
		return fmt.Errorf("invalid default wait strategy: %s (must be all, any, or none)", c.Defaults.WaitStrategy)
	}

	// Validate permissions
	switch c.Permissions.CrossProjectMode {
	case CrossProjectAll, CrossProjectNone, CrossProjectExplicit:
	default:
		return fmt.Errorf("invalid cross-project mode: %s (must be all, none, or explicit)", c.Permissions.CrossProjectMode)
	}
	if c.Permissions.MaxGlobalConcurrency < 1 {
		return fmt.Errorf("max global concurrency must be at least 1")
	}

	// Validate rate limit config
	if c.RateLimit.Enabled {
		if c.RateLimit.PerMinute < 1 || c.RateLimit.PerHour < 1 {
			return fmt.Errorf("rate limits must be at least 1 when enabled")
		}
		if c.RateLimit.BurstSize < 1 {
			return fmt.Errorf("rate limit burst size must be at least 1")
		}
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
