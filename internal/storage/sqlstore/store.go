// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/logging"
)

// Store implements audit.Store over a *sql.DB using a Dialect.
type Store struct {
	db      *sql.DB
	dialect *Dialect
	now     func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New wraps an open database. The schema must already exist. The store owns
// db and closes it in Close.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{
		db:      db,
		dialect: &d,
		now:     time.Now,
	}
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ExecAll runs schema statements in order. Statements are kept separate
// because trigger bodies contain semicolons.
func ExecAll(ctx context.Context, db *sql.DB, statements ...string) error {
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Write persists a single event.
func (s *Store) Write(ctx context.Context, event *audit.Event) error {
	if s.closed.Load() {
		return audit.ErrClosed
	}
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	args, err := s.dialect.Args(event, s.now())
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(s.dialect.Insert), args...); err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

// WriteBatch persists events in one transaction. Either every event is
// committed or none is.
func (s *Store) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	if s.closed.Load() {
		return audit.ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if s.dialect.WriteBatch != nil {
		err = s.dialect.WriteBatch(ctx, tx, s.dialect, events)
	} else {
		err = s.insertPrepared(ctx, tx, events)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch of %d events: %w", len(events), err)
	}
	return nil
}

func (s *Store) insertPrepared(ctx context.Context, tx *sql.Tx, events []audit.Event) error {
	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(s.dialect.Insert))
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for i := range events {
		args, err := s.dialect.Args(&events[i], now)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to save audit event %s: %w", events[i].ID, err)
		}
	}
	return nil
}

// Query retrieves one page of events matching the filter.
func (s *Store) Query(ctx context.Context, filter audit.QueryFilter) (*audit.Page, error) {
	if s.closed.Load() {
		return nil, audit.ErrClosed
	}
	f, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	total, err := s.count(ctx, f)
	if err != nil {
		return nil, err
	}
	if total == 0 || f.Offset >= int(total) {
		return audit.NewPage(nil, total, f), nil
	}

	query, args := s.buildQuery(f, false)
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]audit.Event, 0, min(f.Limit, int(total)))
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return audit.NewPage(events, total, f), nil
}

// Count returns the number of events matching the filter.
func (s *Store) Count(ctx context.Context, filter audit.QueryFilter) (int64, error) {
	if s.closed.Load() {
		return 0, audit.ErrClosed
	}
	f, err := filter.Normalize()
	if err != nil {
		return 0, err
	}
	return s.count(ctx, f)
}

func (s *Store) count(ctx context.Context, f audit.QueryFilter) (int64, error) {
	query, args := s.buildQuery(f, true)

	var count int64
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// GetStats aggregates events inside the time range.
func (s *Store) GetStats(ctx context.Context, tr audit.TimeRange) (*audit.Stats, error) {
	if s.closed.Load() {
		return nil, audit.ErrClosed
	}

	where, args := s.rangeConditions(tr)
	stats := audit.NewStats(tr)

	var successes int64
	var oldest, newest timeValue
	query := fmt.Sprintf(`SELECT COUNT(*), COUNT(CASE WHEN success THEN 1 END), MIN(timestamp), MAX(timestamp) FROM %s%s`, Table, where)
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...).
		Scan(&stats.TotalEvents, &successes, &oldest, &newest); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	var err error
	if stats.EventsByAction, err = s.countByColumn(ctx, "action", where, args); err != nil {
		return nil, err
	}
	if stats.EventsByResource, err = s.countByColumn(ctx, "resource", where, args); err != nil {
		return nil, err
	}
	if stats.EventsByLevel, err = s.countByColumn(ctx, "level", where, args); err != nil {
		return nil, err
	}

	stats.Finalize(successes, oldest.ptr(), newest.ptr())
	return stats, nil
}

// countByColumn executes a GROUP BY query and returns counts per value.
func (s *Store) countByColumn(ctx context.Context, column, where string, args []any) (map[string]int64, error) {
	result := make(map[string]int64)
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s%s GROUP BY %s", column, Table, where, column)
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s counts: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key sql.NullString
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan %s counts: %w", column, err)
		}
		result[key.String] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return result, nil
}

func (s *Store) rangeConditions(tr audit.TimeRange) (string, []any) {
	var conditions []string
	var args []any
	if tr.Start != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, s.dialect.encodeBound(*tr.Start))
	}
	if tr.End != nil {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, s.dialect.encodeBound(*tr.End))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// Purge removes events older than the given time.
func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	if s.closed.Load() {
		return 0, audit.ErrClosed
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", Table)
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(query), s.dialect.encodeBound(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	if count > 0 {
		logging.Info().
			Str("store", s.dialect.Name).
			Int64("deleted", count).
			Time("older_than", olderThan).
			Msg("Deleted old audit events")
	}
	return count, nil
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) bool {
	if s.closed.Load() {
		return false
	}
	return s.db.PingContext(ctx) == nil
}

// Close closes the pool. Later calls return the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
