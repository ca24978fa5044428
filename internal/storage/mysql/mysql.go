// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package mysql stores audit events in MySQL 8 through go-sql-driver/mysql.
//
// Timestamps are DATETIME(6) in UTC and payloads are JSON columns.
// Descriptions carry an InnoDB FULLTEXT index queried in boolean mode, which
// ignores words shorter than innodb_ft_min_token_size (3 by default).
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/storage/sqlstore"
)

// Options configures Open.
type Options struct {
	// DSN is a go-sql-driver/mysql data source name,
	// e.g. "user:pass@tcp(host:3306)/audit".
	DSN string

	// MaxOpenConns caps the pool. Zero leaves it unbounded.
	MaxOpenConns int

	// ConnMaxLifetime recycles pooled connections. It should stay below the
	// server's wait_timeout. Zero selects three minutes.
	ConnMaxLifetime time.Duration
}

// Identifiers compare byte-wise; the description column uses a
// case-insensitive collation so FULLTEXT matching ignores case.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id VARCHAR(64) NOT NULL,
		timestamp DATETIME(6) NOT NULL,
		action VARCHAR(64) NOT NULL,
		actor_id VARCHAR(255) NOT NULL DEFAULT '',
		actor_type VARCHAR(32) NOT NULL,
		resource VARCHAR(128) NOT NULL,
		resource_id VARCHAR(255) NOT NULL DEFAULT '',
		level VARCHAR(16) NOT NULL,
		success BOOLEAN NOT NULL,
		description TEXT COLLATE utf8mb4_0900_ai_ci NOT NULL,
		old_values JSON NULL,
		new_values JSON NULL,
		metadata JSON NULL,
		context JSON NULL,
		correlation_id VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		INDEX idx_audit_timestamp (timestamp),
		INDEX idx_audit_action (action),
		INDEX idx_audit_level (level),
		INDEX idx_audit_correlation_id (correlation_id),
		INDEX idx_audit_actor_timestamp (actor_id, timestamp),
		INDEX idx_audit_resource_timestamp (resource, timestamp),
		FULLTEXT INDEX idx_audit_description (description)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`,
}

// Dialect returns the MySQL flavor of the shared SQL store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:       "mysql",
		EncodeTime: sqlstore.UTCTime,
		Insert:     sqlstore.InsertStatement("INSERT INTO", " ON DUPLICATE KEY UPDATE id = id"),
		Search:     fulltextSearch,
	}
}

// Open connects to MySQL and ensures the schema exists. The DSN is forced to
// parse DATETIME columns into UTC time values.
func Open(ctx context.Context, opts Options) (*sqlstore.Store, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("mysql: dsn is required")
	}

	cfg, err := mysql.ParseDSN(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = false

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(connector)

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	lifetime := opts.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 3 * time.Minute
	}
	db.SetConnMaxLifetime(lifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: connect: %w", err)
	}
	if err := sqlstore.ExecAll(ctx, db, schema...); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: %w", err)
	}

	logging.Info().Str("addr", cfg.Addr).Str("database", cfg.DBName).Msg("MySQL audit store ready")
	return sqlstore.New(db, Dialect()), nil
}

// booleanOperators are stripped from terms so user input cannot change the
// meaning of the boolean-mode query.
const booleanOperators = `+-<>()~*"@`

// fulltextSearch requires every term as a word prefix: "+disk* +quota*".
func fulltextSearch(terms []string) (string, string, []any) {
	words := make([]string, 0, len(terms))
	for _, term := range terms {
		clean := strings.Map(func(r rune) rune {
			if strings.ContainsRune(booleanOperators, r) {
				return -1
			}
			return r
		}, term)
		if clean != "" {
			words = append(words, "+"+clean+"*")
		}
	}
	if len(words) == 0 {
		return "", "", nil
	}
	return "", "MATCH(audit_events.description) AGAINST (? IN BOOLEAN MODE)", []any{strings.Join(words, " ")}
}
