// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package sqlstore implements audit.Store on top of database/sql. The SQL
// adapters (sqlite, duckdb, postgres, mysql) share the WHERE builder, row
// scanning, payload encoding and stats grouping found here and differ only in
// the Dialect they pass to New.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/chronicle/internal/audit"
)

// Table is the name of the events table in every SQL backend.
const Table = "audit_events"

// Columns lists the insert columns in bind order.
var Columns = []string{
	"id", "timestamp", "action", "actor_id", "actor_type",
	"resource", "resource_id", "level", "success", "description",
	"old_values", "new_values", "metadata", "context", "correlation_id",
	"created_at",
}

// Dialect captures everything that differs between SQL backends.
type Dialect struct {
	// Name labels errors and log lines ("sqlite", "postgres", ...).
	Name string

	// Rebind rewrites '?' markers into the driver's placeholder style.
	// Nil keeps them unchanged.
	Rebind func(query string) string

	// EncodeTime converts a timestamp into the driver value stored in the
	// timestamp and created_at columns.
	EncodeTime func(t time.Time) any

	// SelectJSON wraps a JSON column in the select list. Nil selects the
	// column as is.
	SelectJSON func(column string) string

	// Insert is the single-row insert with '?' markers for Columns. It must
	// skip rows whose id already exists.
	Insert string

	// Search returns an optional join and the predicate selecting events
	// whose description matches every term. The predicate uses '?' markers.
	Search func(terms []string) (join, cond string, args []any)

	// WriteBatch replaces the default prepared-statement batch insert. It
	// runs inside a transaction the store commits.
	WriteBatch func(ctx context.Context, tx *sql.Tx, d *Dialect, events []audit.Event) error
}

// InsertStatement builds "<verb> audit_events (<Columns>) VALUES (?, ...)<suffix>".
func InsertStatement(verb, suffix string) string {
	marks := make([]string, len(Columns))
	for i := range marks {
		marks[i] = "?"
	}
	return fmt.Sprintf("%s %s (%s) VALUES (%s)%s",
		verb, Table, strings.Join(Columns, ", "), strings.Join(marks, ", "), suffix)
}

// DollarPlaceholders rewrites '?' markers into $1, $2, ... for PostgreSQL.
// Statements built by this package never contain a literal question mark.
func DollarPlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// UnixMicros stores timestamps as integer microseconds since the epoch.
func UnixMicros(t time.Time) any {
	return t.UTC().UnixMicro()
}

// UTCTime stores timestamps as native time values in UTC.
func UTCTime(t time.Time) any {
	return t.UTC()
}

func (d *Dialect) rebind(query string) string {
	if d.Rebind == nil {
		return query
	}
	return d.Rebind(query)
}

func (d *Dialect) selectJSON(column string) string {
	if d.SelectJSON == nil {
		return column
	}
	return d.SelectJSON(column)
}

func (d *Dialect) encodeTime(t time.Time) any {
	if d.EncodeTime == nil {
		return UTCTime(t)
	}
	return d.EncodeTime(t)
}

// encodeBound encodes a range or cutoff bound, raised to whole microseconds
// so it compares correctly against stored values.
func (d *Dialect) encodeBound(t time.Time) any {
	return d.encodeTime(audit.CeilMicro(t))
}

// Args returns the bind values for Insert in Columns order.
func (d *Dialect) Args(e *audit.Event, now time.Time) ([]any, error) {
	oldValues, err := encodePayload(e.OldValues)
	if err != nil {
		return nil, fmt.Errorf("encode old_values: %w", err)
	}
	newValues, err := encodePayload(e.NewValues)
	if err != nil {
		return nil, fmt.Errorf("encode new_values: %w", err)
	}
	metadata, err := encodePayload(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	reqCtx, err := encodeContext(e.Context)
	if err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}

	return []any{
		e.ID,
		d.encodeTime(e.Timestamp),
		string(e.Action),
		e.ActorID,
		string(e.ActorType),
		e.Resource,
		e.ResourceID,
		string(e.Level),
		e.Success,
		e.Description,
		oldValues,
		newValues,
		metadata,
		reqCtx,
		e.CorrelationID,
		d.encodeTime(now),
	}, nil
}
