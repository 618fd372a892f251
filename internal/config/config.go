package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the PhotoForge server.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Reaper    ReaperConfig
	Retention RetentionConfig
	Sessions  SessionPoolConfig
	Pipeline  PipelineConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type StoreConfig struct {
	// Driver selects the job store backend: "postgres" or "memory".
	Driver string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	// URL is optional; without it the server runs without a status cache.
	URL string
}

type QueueConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

type ReaperConfig struct {
	Interval  time.Duration
	Threshold time.Duration
}

type RetentionConfig struct {
	Window   time.Duration
	Schedule string
}

type SessionPoolConfig struct {
	MaxSize             int
	MinSize             int
	AcquireTimeout      time.Duration
	IdleTimeout         time.Duration
	MaxLifetime         time.Duration
	HealthCheckInterval time.Duration
}

type PipelineConfig struct {
	Backend     string
	MockLatency time.Duration
}

var validStoreDrivers = map[string]bool{
	"postgres": true,
	"memory":   true,
}

var validPipelineBackends = map[string]bool{
	"mock": true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PHOTOFORGE_PORT", 8080),
			Env:  envString("PHOTOFORGE_ENV", "development"),
		},
		Store: StoreConfig{
			Driver: envString("PHOTOFORGE_STORE", "postgres"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			MaxRetries: envInt("QUEUE_MAX_RETRIES", 3),
			BaseDelay:  envDuration("QUEUE_BASE_DELAY", 2*time.Second),
			MaxDelay:   envDuration("QUEUE_MAX_DELAY", 2*time.Minute),
		},
		Reaper: ReaperConfig{
			Interval:  envDuration("REAPER_INTERVAL", 5*time.Minute),
			Threshold: envDuration("REAPER_THRESHOLD", 30*time.Minute),
		},
		Retention: RetentionConfig{
			Window:   envDuration("RETENTION_WINDOW", 7*24*time.Hour),
			Schedule: envString("RETENTION_SCHEDULE", "@daily"),
		},
		Sessions: SessionPoolConfig{
			MaxSize:             envInt("SESSION_POOL_MAX", 4),
			MinSize:             envInt("SESSION_POOL_MIN", 1),
			AcquireTimeout:      envDuration("SESSION_POOL_ACQUIRE_TIMEOUT", 30*time.Second),
			IdleTimeout:         envDuration("SESSION_POOL_IDLE_TIMEOUT", 5*time.Minute),
			MaxLifetime:         envDuration("SESSION_POOL_MAX_LIFETIME", 30*time.Minute),
			HealthCheckInterval: envDuration("SESSION_POOL_HEALTH_INTERVAL", time.Minute),
		},
		Pipeline: PipelineConfig{
			Backend:     envString("PIPELINE_BACKEND", "mock"),
			MockLatency: envDuration("PIPELINE_MOCK_LATENCY", 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validStoreDrivers[c.Store.Driver] {
		return fmt.Errorf("PHOTOFORGE_STORE must be one of postgres, memory; got %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when PHOTOFORGE_STORE is postgres")
	}

	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must be >= 0, got %d", c.Queue.MaxRetries)
	}
	if c.Queue.MaxDelay < c.Queue.BaseDelay {
		return fmt.Errorf("QUEUE_MAX_DELAY (%s) must be >= QUEUE_BASE_DELAY (%s)", c.Queue.MaxDelay, c.Queue.BaseDelay)
	}

	if c.Reaper.Threshold <= 0 {
		return fmt.Errorf("REAPER_THRESHOLD must be positive, got %s", c.Reaper.Threshold)
	}

	if c.Sessions.MaxSize <= 0 {
		return fmt.Errorf("SESSION_POOL_MAX must be positive, got %d", c.Sessions.MaxSize)
	}
	if c.Sessions.MinSize < 0 || c.Sessions.MinSize > c.Sessions.MaxSize {
		return fmt.Errorf("SESSION_POOL_MIN must be within [0, %d]; got %d", c.Sessions.MaxSize, c.Sessions.MinSize)
	}

	if !validPipelineBackends[c.Pipeline.Backend] {
		return fmt.Errorf("PIPELINE_BACKEND must be mock; got %q", c.Pipeline.Backend)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
