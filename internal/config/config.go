// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// DevJWTSecret is used when JWT_SECRET is unset. Never deploy with it.
const DevJWTSecret = "dev-secret-change-in-production-use-openssl-rand-base64-32"

// Lock backends
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

// Config holds all configuration for the api, worker and ledgerctl binaries
type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	DatabaseURL   string `envconfig:"DATABASE_URL"` // empty runs on the in-memory store
	RedisURL      string `envconfig:"REDIS_URL" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	AsyncMode     bool   `envconfig:"ASYNC_MODE" default:"false"`
	JWTSecret     string `envconfig:"JWT_SECRET"`

	LockBackend     string        `envconfig:"LOCK_BACKEND" default:"local"`
	LockWaitTimeout time.Duration `envconfig:"LOCK_WAIT_TIMEOUT" default:"5s"`
	LockTTL         time.Duration `envconfig:"LOCK_TTL" default:"30s"`

	NodeID         int64 `envconfig:"NODE_ID" default:"1"`
	StatementLimit int   `envconfig:"STATEMENT_LIMIT" default:"20"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// CORSAllowedOrigins is a comma separated list; empty disables CORS handling
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// Load reads the environment, applies defaults and validates the result
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes the config and rejects values the binaries cannot run with
func (c *Config) Validate() error {
	c.Port = strings.TrimSpace(c.Port)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.LockBackend = strings.ToLower(strings.TrimSpace(c.LockBackend))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		c.JWTSecret = DevJWTSecret
	}

	switch c.LockBackend {
	case LockBackendLocal:
	case LockBackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("LOCK_BACKEND must be %q or %q, got %q", LockBackendLocal, LockBackendRedis, c.LockBackend)
	}
	if c.AsyncMode && c.RedisURL == "" {
		return errors.New("REDIS_URL is required when ASYNC_MODE is enabled")
	}

	if c.LockWaitTimeout <= 0 {
		return errors.New("LOCK_WAIT_TIMEOUT must be positive")
	}
	if c.LockBackend == LockBackendRedis && c.LockTTL <= c.LockWaitTimeout {
		return errors.New("LOCK_TTL must be longer than LOCK_WAIT_TIMEOUT")
	}

	// snowflake reserves 10 bits for the node
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("NODE_ID must be between 0 and 1023, got %d", c.NodeID)
	}
	if c.StatementLimit < 1 || c.StatementLimit > 1000 {
		return fmt.Errorf("STATEMENT_LIMIT must be between 1 and 1000, got %d", c.StatementLimit)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// UsingDevSecret reports whether tokens are signed with the built-in development secret
func (c *Config) UsingDevSecret() bool {
	return c.JWTSecret == DevJWTSecret
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
