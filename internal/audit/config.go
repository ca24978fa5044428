// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

import (
	"fmt"
	"time"

	"github.com/tomtom215/chronicle/internal/validation"
)

// Config holds audit engine settings.
type Config struct {
	// Enabled turns admission on. A disabled engine drops every event silently.
	Enabled bool `koanf:"enabled"`

	// BatchSize is the queue length that triggers an immediate flush.
	// A size of 1 makes every Log call write through synchronously.
	BatchSize int `koanf:"batch_size" validate:"min=1,max=100000"`

	// FlushInterval is the period of the automatic flush timer.
	FlushInterval time.Duration `koanf:"flush_interval" validate:"min=1ms"`

	// MaxRetries is the total number of write attempts per flush.
	MaxRetries int `koanf:"max_retries" validate:"min=1,max=20"`

	// RetryDelay is the base of the exponential backoff between attempts.
	RetryDelay time.Duration `koanf:"retry_delay" validate:"min=0"`

	// WriteTimeout bounds a single write attempt.
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"min=0"`

	// Level is the minimum level admitted.
	Level Level `koanf:"level" validate:"omitempty,oneof=low medium high critical"`

	Filters  FilterConfig   `koanf:"filters"`
	Sanitize SanitizeConfig `koanf:"sanitize"`

	// Metadata is merged under every event's own metadata.
	Metadata map[string]any `koanf:"metadata"`
}

// FilterConfig holds include and exclude rules.
type FilterConfig struct {
	Include FilterRule `koanf:"include"`
	Exclude FilterRule `koanf:"exclude"`
}

// FilterRule matches events by action, resource, or actor ID. A rule matches
// an event when any one of its lists contains the event's value.
type FilterRule struct {
	Actions   []string `koanf:"actions"`
	Resources []string `koanf:"resources"`
	Actors    []string `koanf:"actors"`
}

// IsEmpty reports whether the rule has no criteria.
func (r FilterRule) IsEmpty() bool {
	return len(r.Actions) == 0 && len(r.Resources) == 0 && len(r.Actors) == 0
}

// SanitizeConfig controls payload redaction.
type SanitizeConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Fields      []string `koanf:"fields"`
	Replacement string   `koanf:"replacement"`
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		WriteTimeout:  10 * time.Second,
		Level:         LevelLow,
		Sanitize: SanitizeConfig{
			Enabled:     true,
			Fields:      append([]string(nil), DefaultSensitiveFields...),
			Replacement: DefaultRedacted,
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, verr)
	}
	return nil
}
