// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Polygon PolygonConfig `envPrefix:"POLYGON_"`
	Cache   CacheConfig   `envPrefix:"CACHE_"`
	Log     LogConfig     `envPrefix:"LOG_"`

	PageSize        int           `env:"PAGE_SIZE" envDefault:"100"`
	Port            string        `env:"PORT" envDefault:"8080"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"24h"`
	NotifyAutoHide  time.Duration `env:"NOTIFY_AUTO_HIDE" envDefault:"5s"`
}

// PolygonConfig holds upstream API configuration
type PolygonConfig struct {
	APIKey  string        `env:"API_KEY"`
	BaseURL string        `env:"BASE_URL" envDefault:"https://api.polygon.io"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	ReferenceTTL    time.Duration `env:"REFERENCE_TTL" envDefault:"30m"`
	EndpointTTL     time.Duration `env:"ENDPOINT_TTL" envDefault:"5m"`
	Dir             string        `env:"DIR"` // empty means ~/.tickerscope_cache
	OfflineFallback bool          `env:"OFFLINE_FALLBACK" envDefault:"false"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"` // json, pretty
	File   string `env:"FILE"`
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 1000 {
		return nil, fmt.Errorf("PAGE_SIZE must be between 1-1000, got %d", cfg.PageSize)
	}
	return cfg, nil
}

// HasAPIKey returns true if the upstream credential is set
func (c *Config) HasAPIKey() bool {
	return c.Polygon.APIKey != ""
}

// HasDatabase returns true if a Postgres cache tier is configured
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// HasRedis returns true if the job queue is configured
func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

// Validate ensures the configuration can reach the upstream API
func (c *Config) Validate() error {
	if !c.HasAPIKey() {
		return errors.New("POLYGON_API_KEY is not set")
	}
	if c.Polygon.Timeout <= 0 {
		return fmt.Errorf("POLYGON_TIMEOUT must be positive, got %s", c.Polygon.Timeout)
	}
	return nil
}
