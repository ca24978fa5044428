// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package config loads the chronicle daemon configuration.
//
// Sources are layered with koanf, later layers overriding earlier ones:
//
//  1. built-in defaults
//  2. an optional YAML file (CONFIG_PATH, or config.yaml in the working
//     directory, or /etc/chronicle/config.yaml)
//  3. environment variables from an explicit allow-list, e.g.
//     STORAGE_KIND=postgres or AUDIT_BATCH_SIZE=500
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/storage"
	"github.com/tomtom215/chronicle/internal/validation"
)

// Config is the complete daemon configuration.
type Config struct {
	Audit     audit.Config    `koanf:"audit"`
	Storage   storage.Config  `koanf:"storage"`
	Server    ServerConfig    `koanf:"server"`
	Logging   logging.Config  `koanf:"logging"`
	Retention RetentionConfig `koanf:"retention"`
}

// ServerConfig configures the read API listener.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`

	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitRequests per RateLimitWindow per client IP. Zero disables
	// rate limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"min=0"`

	// MaxPageSize caps the limit query parameter.
	MaxPageSize int `koanf:"max_page_size" validate:"min=1,max=1000"`

	// StatsCacheTTL caches stats responses per time range. Zero disables
	// the cache.
	StatsCacheTTL time.Duration `koanf:"stats_cache_ttl" validate:"min=0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RetentionConfig configures periodic purging of old events.
type RetentionConfig struct {
	Enabled bool `koanf:"enabled"`

	// MaxAge is how long events are kept.
	MaxAge time.Duration `koanf:"max_age" validate:"min=0"`

	// Interval is the time between purge runs.
	Interval time.Duration `koanf:"interval" validate:"min=0"`
}

// defaultConfig returns the configuration used before any file or
// environment override.
func defaultConfig() *Config {
	store := storage.DefaultConfig()
	store.Kind = storage.KindSQLite
	store.Path = "/data/chronicle.db"

	return &Config{
		Audit:   audit.DefaultConfig(),
		Storage: store,
		Server: ServerConfig{
			Enabled:           true,
			Host:              "0.0.0.0",
			Port:              8270,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			MaxPageSize:       1000,
			StatsCacheTTL:     30 * time.Second,
		},
		Logging: logging.Config{
			Level:     "info",
			Format:    "json",
			Timestamp: true,
		},
		Retention: RetentionConfig{
			Enabled:  true,
			MaxAge:   90 * 24 * time.Hour,
			Interval: 24 * time.Hour,
		},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Audit.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, err)
	}
	if verr := validation.ValidateStruct(&c.Server); verr != nil {
		errs = append(errs, fmt.Errorf("server: %w", verr))
	}
	if verr := validation.ValidateStruct(&c.Logging); verr != nil {
		errs = append(errs, fmt.Errorf("logging: %w", verr))
	}
	if err := c.validateRetention(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) validateRetention() error {
	if verr := validation.ValidateStruct(&c.Retention); verr != nil {
		return fmt.Errorf("retention: %w", verr)
	}
	if !c.Retention.Enabled {
		return nil
	}
	if c.Retention.MaxAge <= 0 {
		return fmt.Errorf("retention: max_age must be positive when retention is enabled")
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("retention: interval must be positive when retention is enabled")
	}
	return nil
}
