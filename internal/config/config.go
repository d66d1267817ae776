// Package config reads runtime settings from STORYESTIMATE_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every variable name.
const Prefix = "STORYESTIMATE_"

// Backend names
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds application settings.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Port        int    `env:"PORT" envDefault:"8000"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Backend     string `env:"BACKEND" envDefault:"memory"`
	BaseURL     string `env:"BASE_URL"`

	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	RedisNamespace string        `env:"REDIS_NAMESPACE" envDefault:"STORYESTIMATES"`
	RedisTTL       time.Duration `env:"REDIS_TTL" envDefault:"0s"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"storyestimate.db"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	CreateRate     float64  `env:"CREATE_RATE" envDefault:"1"`
	CreateBurst    int      `env:"CREATE_BURST" envDefault:"10"`
	TrustProxy     bool     `env:"TRUST_PROXY" envDefault:"false"`
}

// Load reads .env when present, then parses the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{Prefix: Prefix})
}

// FromMap parses settings from vars instead of the process environment.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the app can not run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend, BackendMemory, BackendRedis, BackendSQLite)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.RedisTTL < 0 {
		return fmt.Errorf("redis TTL must not be negative, got %s", c.RedisTTL)
	}
	if c.CreateRate <= 0 || c.CreateBurst < 1 {
		return fmt.Errorf("create rate limit must be positive, got %g/s burst %d", c.CreateRate, c.CreateBurst)
	}
	return nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
