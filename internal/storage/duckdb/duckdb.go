// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package duckdb provides audit persistence in an embedded DuckDB database.
// DuckDB suits deployments that run analytical queries over long audit
// histories. It has no incrementally maintained full-text index, so free-text
// search is a case-insensitive ILIKE scan over descriptions.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/storage/sqlstore"
)

// MemoryPath opens an in-memory database.
const MemoryPath = ":memory:"

// Options configures Open.
type Options struct {
	// Path is the database file, or MemoryPath.
	Path string

	// Threads bounds DuckDB worker threads. Zero leaves DuckDB's default.
	Threads int

	// MaxMemory bounds the buffer pool, e.g. "1GB". Empty leaves DuckDB's
	// default.
	MaxMemory string
}

// schema creates the audit_events table and its indexes.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_type TEXT NOT NULL,
		resource TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		level TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		description TEXT NOT NULL,

		-- Payloads
		old_values JSON,
		new_values JSON,
		metadata JSON,
		context JSON,

		correlation_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	// Indexes for common query patterns
	`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_events(action)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_level ON audit_events(level)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_actor_id ON audit_events(actor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_events(resource)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_correlation_id ON audit_events(correlation_id)`,
}

// Dialect returns the DuckDB flavor of the shared SQL store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:       "duckdb",
		EncodeTime: sqlstore.UTCTime,
		// Cast JSON columns to VARCHAR for proper scanning
		SelectJSON: func(column string) string { return "CAST(" + column + " AS VARCHAR)" },
		Insert:     sqlstore.InsertStatement("INSERT INTO", " ON CONFLICT DO NOTHING"),
		Search:     sqlstore.LikeSearch("ILIKE"),
	}
}

// Open opens the database at opts.Path and ensures the schema exists.
func Open(ctx context.Context, opts Options) (*sqlstore.Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("duckdb: path is required")
	}

	db, err := sql.Open("duckdb", connString(opts))
	if err != nil {
		return nil, fmt.Errorf("duckdb: failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("duckdb: failed to connect: %w", err)
	}
	if err := sqlstore.ExecAll(ctx, db, schema...); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("duckdb: %w", err)
	}

	logging.Info().Str("path", opts.Path).Msg("Audit events table created/verified")
	return sqlstore.New(db, Dialect()), nil
}

// connString builds the DuckDB DSN. Extension auto-install is disabled so a
// restricted network cannot stall startup; JSON is built into the driver.
func connString(opts Options) string {
	dsn := opts.Path + "?autoinstall_known_extensions=false&autoload_known_extensions=true"
	if opts.Path != MemoryPath {
		dsn += "&access_mode=read_write"
	}
	if opts.Threads > 0 {
		dsn += fmt.Sprintf("&threads=%d", opts.Threads)
	}
	if opts.MaxMemory != "" {
		dsn += "&max_memory=" + opts.MaxMemory
	}
	return dsn
}
