// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package postgres stores audit events in PostgreSQL through lib/pq.
//
// Payloads are JSONB. Descriptions are indexed by a generated tsvector column
// with a GIN index. Batches are loaded with COPY into a transaction-scoped
// staging table and merged with ON CONFLICT DO NOTHING, so a redelivered
// batch is absorbed without error.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/storage/sqlstore"
)

const stagingTable = "audit_events_import"

// Options configures Open.
type Options struct {
	// DSN is a lib/pq connection string or URL.
	DSN string

	// MaxOpenConns caps the pool. Zero leaves it unbounded.
	MaxOpenConns int

	// ConnMaxLifetime recycles pooled connections. Zero keeps them.
	ConnMaxLifetime time.Duration
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		actor_type TEXT NOT NULL,
		resource TEXT NOT NULL,
		resource_id TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		old_values JSONB,
		new_values JSONB,
		metadata JSONB,
		context JSONB,
		correlation_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		search_vector TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', coalesce(description, ''))) STORED
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events (timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_events (action)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_level ON audit_events (level)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_correlation_id ON audit_events (correlation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_actor_timestamp ON audit_events (actor_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_resource_timestamp ON audit_events (resource, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_search ON audit_events USING GIN (search_vector)`,
}

// Dialect returns the PostgreSQL flavor of the shared SQL store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:       "postgres",
		Rebind:     sqlstore.DollarPlaceholders,
		EncodeTime: sqlstore.UTCTime,
		Insert:     sqlstore.InsertStatement("INSERT INTO", " ON CONFLICT (id) DO NOTHING"),
		Search:     tsSearch,
		WriteBatch: copyBatch,
	}
}

// Open connects to PostgreSQL and ensures the schema exists.
func Open(ctx context.Context, opts Options) (*sqlstore.Store, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := sqlstore.ExecAll(ctx, db, schema...); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	logging.Info().Msg("PostgreSQL audit store ready")
	return sqlstore.New(db, Dialect()), nil
}

// tsSearch matches descriptions against plainto_tsquery, which ANDs the
// terms after normalizing them with the 'simple' configuration.
func tsSearch(terms []string) (string, string, []any) {
	return "", "audit_events.search_vector @@ plainto_tsquery('simple', ?)", []any{strings.Join(terms, " ")}
}

// copyBatch writes a batch of events to PostgreSQL using the COPY protocol
// and merges it into the main table, skipping ids that already exist.
func copyBatch(ctx context.Context, txn *sql.Tx, d *sqlstore.Dialect, events []audit.Event) error {
	// The staging table lives only for this transaction.
	_, err := txn.ExecContext(ctx, `CREATE TEMP TABLE `+stagingTable+` (LIKE audit_events INCLUDING DEFAULTS) ON COMMIT DROP`)
	if err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(stagingTable, sqlstore.Columns...))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	now := time.Now()
	for i := range events {
		args, err := d.Args(&events[i], now)
		if err != nil {
			_ = stmt.Close()
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			// Close the statement to avoid connection issues
			_ = stmt.Close()
			return fmt.Errorf("copy event %s: %w", events[i].ID, err)
		}
	}

	// The final Exec flushes buffered rows to the server.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	// DISTINCT ON drops duplicates inside the batch itself.
	cols := strings.Join(sqlstore.Columns, ", ")
	merge := `INSERT INTO audit_events (` + cols + `)
		SELECT DISTINCT ON (id) ` + cols + ` FROM ` + stagingTable + `
		ON CONFLICT (id) DO NOTHING`
	if _, err := txn.ExecContext(ctx, merge); err != nil {
		return fmt.Errorf("merge staged events: %w", err)
	}
	return nil
}
