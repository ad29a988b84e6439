package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"SF_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"SF_DB_MAX_CONNS" default:"8"`

	BatchSize         int    `envconfig:"SF_BATCH_SIZE" default:"10000"`
	LinkerConcurrency int    `envconfig:"SF_LINKER_CONCURRENCY" default:"4"`
	RetryAttempts     int    `envconfig:"SF_RETRY_ATTEMPTS" default:"3"`
	ServeAddr         string `envconfig:"SF_SERVE_ADDR" default:":8810"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("SF_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("SF_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("SF_DB_MIN_CONNS (%d) cannot exceed SF_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("SF_BATCH_SIZE must be >= 1")
	}
	if c.LinkerConcurrency < 1 {
		return fmt.Errorf("SF_LINKER_CONCURRENCY must be >= 1")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("SF_RETRY_ATTEMPTS must be >= 1")
	}
	if strings.TrimSpace(c.ServeAddr) == "" {
		return fmt.Errorf("SF_SERVE_ADDR is required")
	}
	return nil
}
