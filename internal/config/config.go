package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Server basics
	Addr string `env:"HUB_ADDR" envDefault:":8080"`

	// Capacity
	MaxConnections int `env:"HUB_MAX_CONNECTIONS" envDefault:"4096"`
	SendQueueSize  int `env:"HUB_SEND_QUEUE_SIZE" envDefault:"1024"`

	// Connection rate limiting
	ConnRatePerIP   float64 `env:"HUB_CONN_RATE_PER_IP" envDefault:"5"`
	ConnBurstPerIP  int     `env:"HUB_CONN_BURST_PER_IP" envDefault:"20"`
	ConnRateGlobal  float64 `env:"HUB_CONN_RATE_GLOBAL" envDefault:"200"`
	ConnBurstGlobal int     `env:"HUB_CONN_BURST_GLOBAL" envDefault:"500"`

	// Lifecycle
	ShutdownTimeout time.Duration `env:"HUB_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Monitoring
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from .env file and environment variables
// Priority: ENV vars > .env file > defaults
//
// Optional logger parameter for structured logging. If nil, stays quiet.
func Load(logger *zerolog.Logger) (*Config, error) {
	// .env is a development convenience; in containers the environment
	// carries everything.
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("HUB_ADDR is required")
	}

	if c.MaxConnections < 1 {
		return fmt.Errorf("HUB_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.SendQueueSize < 1 {
		return fmt.Errorf("HUB_SEND_QUEUE_SIZE must be > 0, got %d", c.SendQueueSize)
	}
	if c.ConnRatePerIP <= 0 || c.ConnRateGlobal <= 0 {
		return fmt.Errorf("connection rates must be > 0, got per-ip %.1f global %.1f", c.ConnRatePerIP, c.ConnRateGlobal)
	}
	if c.ConnBurstPerIP < 1 || c.ConnBurstGlobal < 1 {
		return fmt.Errorf("connection bursts must be > 0, got per-ip %d global %d", c.ConnBurstPerIP, c.ConnBurstGlobal)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("HUB_SHUTDOWN_TIMEOUT must be > 0, got %s", c.ShutdownTimeout)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("METRICS_INTERVAL must be > 0, got %s", c.MetricsInterval)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, text, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig logs configuration using structured logging (Loki-compatible)
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Int("max_connections", c.MaxConnections).
		Int("send_queue_size", c.SendQueueSize).
		Float64("conn_rate_per_ip", c.ConnRatePerIP).
		Int("conn_burst_per_ip", c.ConnBurstPerIP).
		Float64("conn_rate_global", c.ConnRateGlobal).
		Int("conn_burst_global", c.ConnBurstGlobal).
		Dur("shutdown_timeout", c.ShutdownTimeout).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Server configuration loaded")
}
