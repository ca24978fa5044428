// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package sqlite is the reference embedded audit store. It uses the pure-Go
// modernc.org/sqlite driver in WAL mode, keeps an FTS5 shadow table of event
// descriptions in sync through triggers, and answers free-text queries by
// joining against that table.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/storage/sqlstore"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// defaultMaxOpenConns bounds the pool for file databases. WAL allows
// concurrent readers alongside the single writer.
const defaultMaxOpenConns = 4

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"cache_size(-64000)",
	"busy_timeout(5000)",
	"temp_store(MEMORY)",
}

// Options configures Open.
type Options struct {
	// Path is the database file, or MemoryPath.
	Path string

	// MaxOpenConns caps the pool. Zero selects a default. In-memory
	// databases always use one connection.
	MaxOpenConns int
}

// Store is the SQLite audit store.
type Store struct {
	*sqlstore.Store
}

// schema creates the events table, its indexes, the FTS5 shadow table and
// the triggers that keep it synchronized. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		actor_type TEXT NOT NULL,
		resource TEXT NOT NULL,
		resource_id TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL,
		success INTEGER NOT NULL DEFAULT 1,
		description TEXT NOT NULL DEFAULT '',
		old_values TEXT,
		new_values TEXT,
		metadata TEXT,
		context TEXT,
		correlation_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_events(action)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_level ON audit_events(level)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_correlation_id ON audit_events(correlation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_actor_timestamp ON audit_events(actor_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_resource_timestamp ON audit_events(resource, timestamp)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS audit_events_fts USING fts5(
		description,
		content='audit_events',
		content_rowid='rowid'
	)`,

	`CREATE TRIGGER IF NOT EXISTS audit_events_ai AFTER INSERT ON audit_events BEGIN
		INSERT INTO audit_events_fts(rowid, description) VALUES (new.rowid, new.description);
	END`,
	`CREATE TRIGGER IF NOT EXISTS audit_events_ad AFTER DELETE ON audit_events BEGIN
		INSERT INTO audit_events_fts(audit_events_fts, rowid, description) VALUES ('delete', old.rowid, old.description);
	END`,
	`CREATE TRIGGER IF NOT EXISTS audit_events_au AFTER UPDATE ON audit_events BEGIN
		INSERT INTO audit_events_fts(audit_events_fts, rowid, description) VALUES ('delete', old.rowid, old.description);
		INSERT INTO audit_events_fts(rowid, description) VALUES (new.rowid, new.description);
	END`,
}

// Dialect returns the SQLite flavor of the shared SQL store.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:       "sqlite",
		EncodeTime: sqlstore.UnixMicros,
		Insert:     sqlstore.InsertStatement("INSERT INTO", " ON CONFLICT(id) DO NOTHING"),
		Search:     ftsSearch,
	}
}

// Open opens (creating if needed) the database at opts.Path and ensures the
// schema exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", dsn(opts.Path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", opts.Path, err)
	}

	switch {
	case opts.Path == MemoryPath:
		// Each connection to a shared-cache memory database sees the same
		// data, but the database vanishes once the last one closes.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
	default:
		db.SetMaxOpenConns(defaultMaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: connect %s: %w", opts.Path, err)
	}
	if err := sqlstore.ExecAll(ctx, db, schema...); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	logging.Info().Str("path", opts.Path).Msg("SQLite audit store ready")
	return &Store{Store: sqlstore.New(db, Dialect())}, nil
}

// dsn builds a modernc.org/sqlite connection string carrying the pragmas.
func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}

	if path == MemoryPath {
		// A unique name keeps concurrently opened memory stores apart.
		q.Set("mode", "memory")
		q.Set("cache", "shared")
		return "file:chronicle-" + uuid.NewString() + "?" + q.Encode()
	}
	return "file:" + path + "?" + q.Encode()
}

// likeSearch covers terms the FTS5 tokenizer cannot index.
var likeSearch = sqlstore.LikeSearch("LIKE")

// ftsSearch joins the FTS5 shadow table and matches every term as a quoted
// phrase. FTS5 treats space-separated phrases as an implicit AND. A term with
// no letter or digit ("-", "%") tokenizes to nothing, so it is matched as a
// substring of the description instead.
func ftsSearch(terms []string) (string, string, []any) {
	var phrases, symbols []string
	for _, term := range terms {
		if strings.IndexFunc(term, isTokenRune) >= 0 {
			phrases = append(phrases, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
		} else {
			symbols = append(symbols, term)
		}
	}

	var (
		join  string
		conds []string
		args  []any
	)
	if len(phrases) > 0 {
		join = "JOIN audit_events_fts ON audit_events_fts.rowid = audit_events.rowid"
		conds = append(conds, "audit_events_fts MATCH ?")
		args = append(args, strings.Join(phrases, " "))
	}
	if len(symbols) > 0 {
		_, cond, likeArgs := likeSearch(symbols)
		conds = append(conds, cond)
		args = append(args, likeArgs...)
	}
	return join, strings.Join(conds, " AND "), args
}

// isTokenRune reports whether the unicode61 tokenizer keeps r in a token.
func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

// RebuildSearchIndex regenerates the FTS5 shadow table from the events
// table. It is only needed after the table was modified with triggers
// disabled.
func (s *Store) RebuildSearchIndex(ctx context.Context) error {
	if _, err := s.DB().ExecContext(ctx, `INSERT INTO audit_events_fts(audit_events_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("sqlite: rebuild search index: %w", err)
	}
	return nil
}

// Optimize merges FTS5 index segments. The retention routine calls it after
// a purge removed rows.
func (s *Store) Optimize(ctx context.Context) error {
	if _, err := s.DB().ExecContext(ctx, `INSERT INTO audit_events_fts(audit_events_fts) VALUES ('optimize')`); err != nil {
		return fmt.Errorf("sqlite: optimize search index: %w", err)
	}
	return nil
}
