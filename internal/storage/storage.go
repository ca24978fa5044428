// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package storage selects and opens an audit store from configuration.
//
// Every store returned by Open is instrumented with per-operation metrics.
// Network backends can additionally sit behind a circuit breaker so a flush
// against an unreachable server fails immediately and the engine requeues.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/storage/badger"
	"github.com/tomtom215/chronicle/internal/storage/duckdb"
	"github.com/tomtom215/chronicle/internal/storage/mongodb"
	"github.com/tomtom215/chronicle/internal/storage/mysql"
	"github.com/tomtom215/chronicle/internal/storage/postgres"
	"github.com/tomtom215/chronicle/internal/storage/sqlite"
	"github.com/tomtom215/chronicle/internal/validation"
)

// Kind names a storage backend.
type Kind string

// Supported backends.
const (
	KindMemory   Kind = "memory"
	KindSQLite   Kind = "sqlite"
	KindDuckDB   Kind = "duckdb"
	KindBadger   Kind = "badger"
	KindPostgres Kind = "postgres"
	KindMySQL    Kind = "mysql"
	KindMongoDB  Kind = "mongodb"
)

// ErrUnknownKind is returned by Open for a kind outside the supported set.
var ErrUnknownKind = errors.New("storage: unknown kind")

// Network reports whether the backend talks to a remote server.
func (k Kind) Network() bool {
	switch k {
	case KindPostgres, KindMySQL, KindMongoDB:
		return true
	}
	return false
}

// Config selects and configures the backend.
type Config struct {
	Kind Kind `koanf:"kind" validate:"required"`

	// Path is the database file or directory for embedded backends.
	Path string `koanf:"path"`

	// DSN is the connection string for network backends.
	DSN string `koanf:"dsn"`

	// Database and Collection locate the MongoDB collection.
	Database   string `koanf:"database"`
	Collection string `koanf:"collection"`

	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"min=0"`

	// MemoryCapacity bounds the memory backend. Zero selects its default.
	MemoryCapacity int `koanf:"memory_capacity" validate:"min=0"`

	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// CircuitBreakerConfig configures the breaker in front of network backends.
type CircuitBreakerConfig struct {
	Enabled bool `koanf:"enabled"`

	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32 `koanf:"max_failures" validate:"omitempty,min=1"`

	// Timeout is how long the breaker stays open before a trial request.
	Timeout time.Duration `koanf:"timeout" validate:"omitempty,min=1ms"`

	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32 `koanf:"max_requests" validate:"omitempty,min=1"`
}

// DefaultConfig returns an in-memory store configuration.
func DefaultConfig() Config {
	return Config{
		Kind: KindMemory,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:     true,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			MaxRequests: 1,
		},
	}
}

// Validate checks that the configuration names a known backend and carries
// the location that backend needs.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("storage: %w", verr)
	}

	switch c.Kind {
	case KindMemory:
	case KindSQLite, KindDuckDB, KindBadger:
		if c.Path == "" {
			return fmt.Errorf("storage: %s requires path", c.Kind)
		}
	case KindPostgres, KindMySQL:
		if c.DSN == "" {
			return fmt.Errorf("storage: %s requires dsn", c.Kind)
		}
	case KindMongoDB:
		if c.DSN == "" || c.Database == "" {
			return fmt.Errorf("storage: mongodb requires dsn and database")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	return nil
}

// Open opens the configured backend and wraps it with the decorators it
// qualifies for.
func Open(ctx context.Context, cfg Config) (audit.Store, error) {
	store, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	name := string(cfg.Kind)
	if cfg.Kind.Network() && cfg.CircuitBreaker.Enabled {
		store = WithCircuitBreaker(store, name, cfg.CircuitBreaker)
	}
	return Instrument(store, name), nil
}

func openBackend(ctx context.Context, cfg Config) (audit.Store, error) {
	switch cfg.Kind {
	case KindMemory:
		return audit.NewMemoryStore(cfg.MemoryCapacity), nil
	case KindSQLite:
		return opened(sqlite.Open(ctx, sqlite.Options{Path: cfg.Path, MaxOpenConns: cfg.MaxOpenConns}))
	case KindDuckDB:
		return opened(duckdb.Open(ctx, duckdb.Options{Path: cfg.Path}))
	case KindBadger:
		return opened(badger.Open(badger.Options{Path: cfg.Path}))
	case KindPostgres:
		return opened(postgres.Open(ctx, postgres.Options{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}))
	case KindMySQL:
		return opened(mysql.Open(ctx, mysql.Options{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}))
	case KindMongoDB:
		return opened(mongodb.Open(ctx, mongodb.Options{
			URI:        cfg.DSN,
			Database:   cfg.Database,
			Collection: cfg.Collection,
		}))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// opened converts a concrete constructor result so a failed open yields a
// nil interface rather than a typed nil.
func opened[S audit.Store](s S, err error) (audit.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Unwrapper is implemented by decorators around a store.
type Unwrapper interface {
	Unwrap() audit.Store
}

// Optimizer is implemented by backends with post-purge maintenance.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// Optimize runs backend maintenance on the first store in the decorator
// chain that supports it. Stores without maintenance are a no-op.
func Optimize(ctx context.Context, store audit.Store) error {
	for store != nil {
		if o, ok := store.(Optimizer); ok {
			return o.Optimize(ctx)
		}
		u, ok := store.(Unwrapper)
		if !ok {
			return nil
		}
		store = u.Unwrap()
	}
	return nil
}
