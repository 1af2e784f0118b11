package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fieldvine/fieldvine/pkg/observability"
	"github.com/fieldvine/fieldvine/pkg/storage/postgres"
	"github.com/fieldvine/fieldvine/pkg/sweep"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database postgres.ConnectionConfig

	// Redis configuration
	Redis RedisConfig

	// Sweep configuration
	Sweep SweepConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RedisConfig holds the portal cache connection settings
type RedisConfig struct {
	// Enabled turns the portal read-model cache on. When false the portal
	// endpoint reads straight from the database.
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

// SweepConfig holds the schedule and sizing for the sweep worker
type SweepConfig struct {
	// Schedule is a cron expression for recurring sweeps
	Schedule     string
	Workers      int
	LeadDays     int
	WindowMonths int
	BatchSize    int
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Sweep:         loadSweepConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FIELDVINE_HOST", "0.0.0.0"),
		Port:            getEnv("FIELDVINE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FIELDVINE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FIELDVINE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FIELDVINE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FIELDVINE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FIELDVINE_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  getEnv("FIELDVINE_POSTGRES_URL", "postgres://localhost/fieldvine?sslmode=disable"),
		ReplicaURLs: postgres.ParseReplicaURLs(getEnv("FIELDVINE_POSTGRES_REPLICA_URLS", "")),
		MaxConns:    getEnvInt("FIELDVINE_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("FIELDVINE_POSTGRES_MIN_CONNS", 5),
		Timeout:     getEnvDuration("FIELDVINE_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("FIELDVINE_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("FIELDVINE_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}
}

// loadRedisConfig loads the portal cache configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getEnvBool("FIELDVINE_CACHE_ENABLED", true),
		URL:      getEnv("FIELDVINE_REDIS_URL", "localhost:6379"),
		Password: getEnv("FIELDVINE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("FIELDVINE_REDIS_DB", 0),
		PoolSize: getEnvInt("FIELDVINE_REDIS_POOL_SIZE", 10),
	}
}

// loadSweepConfig loads the sweep worker configuration from environment
func loadSweepConfig() SweepConfig {
	defaults := sweep.DefaultConfig()
	return SweepConfig{
		Schedule:     getEnv("FIELDVINE_SWEEP_SCHEDULE", "0 * * * *"),
		Workers:      getEnvInt("FIELDVINE_SWEEP_WORKERS", defaults.Workers),
		LeadDays:     getEnvInt("FIELDVINE_SWEEP_LEAD_DAYS", defaults.LeadDays),
		WindowMonths: getEnvInt("FIELDVINE_SWEEP_WINDOW_MONTHS", defaults.WindowMonths),
		BatchSize:    getEnvInt("FIELDVINE_SWEEP_BATCH_SIZE", defaults.BatchSize),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("FIELDVINE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("FIELDVINE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.PrimaryURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("postgres min connections (%d) exceed max connections (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when the cache is enabled")
	}

	if c.Sweep.Schedule == "" {
		return fmt.Errorf("sweep schedule is required")
	}
	if c.Sweep.LeadDays < 0 {
		return fmt.Errorf("sweep lead days must not be negative")
	}
	if c.Sweep.WindowMonths <= 0 {
		return fmt.Errorf("sweep window months must be positive")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
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
