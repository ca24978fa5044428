// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/chronicle/internal/audit"
)

// encodePayload marshals a payload for a JSON column. Empty payloads are
// stored as NULL.
func encodePayload(p audit.Payload) (any, error) {
	if len(p) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func encodeContext(c *audit.RequestContext) (any, error) {
	if c.IsZero() {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// timeValue scans the timestamp encodings produced by the supported drivers:
// integer microseconds, native time values, and text.
type timeValue struct {
	t     time.Time
	valid bool
}

var textTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Scan implements sql.Scanner.
func (v *timeValue) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		v.t, v.valid = time.Time{}, false
		return nil
	case int64:
		v.t = time.UnixMicro(x).UTC()
	case time.Time:
		v.t = x.UTC()
	case []byte:
		return v.parse(string(x))
	case string:
		return v.parse(x)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	v.valid = true
	return nil
}

func (v *timeValue) parse(s string) error {
	for _, layout := range textTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			v.t, v.valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func (v *timeValue) ptr() *time.Time {
	if !v.valid {
		return nil
	}
	t := v.t
	return &t
}

// scannedEventData holds raw scanned values from a select of selectColumns.
type scannedEventData struct {
	event     audit.Event
	timestamp timeValue
	action    string
	actorType string
	level     string
	oldValues sql.NullString
	newValues sql.NullString
	metadata  sql.NullString
	context   sql.NullString
}

// scanDestinations returns pointers to all fields for scanning.
func (d *scannedEventData) scanDestinations() []any {
	return []any{
		&d.event.ID,
		&d.timestamp,
		&d.action,
		&d.event.ActorID,
		&d.actorType,
		&d.event.Resource,
		&d.event.ResourceID,
		&d.level,
		&d.event.Success,
		&d.event.Description,
		&d.oldValues,
		&d.newValues,
		&d.metadata,
		&d.context,
		&d.event.CorrelationID,
	}
}

// toEvent converts scanned data to a fully populated Event.
func (d *scannedEventData) toEvent() (audit.Event, error) {
	d.event.Timestamp = d.timestamp.t
	d.event.Action = audit.Action(d.action)
	d.event.ActorType = audit.ActorType(d.actorType)
	d.event.Level = audit.Level(d.level)

	var err error
	if d.event.OldValues, err = decodePayload(d.oldValues); err != nil {
		return d.event, fmt.Errorf("decode old_values of %s: %w", d.event.ID, err)
	}
	if d.event.NewValues, err = decodePayload(d.newValues); err != nil {
		return d.event, fmt.Errorf("decode new_values of %s: %w", d.event.ID, err)
	}
	if d.event.Metadata, err = decodePayload(d.metadata); err != nil {
		return d.event, fmt.Errorf("decode metadata of %s: %w", d.event.ID, err)
	}
	if d.context.Valid && d.context.String != "" {
		var rc audit.RequestContext
		if err := json.Unmarshal([]byte(d.context.String), &rc); err != nil {
			return d.event, fmt.Errorf("decode context of %s: %w", d.event.ID, err)
		}
		d.event.Context = &rc
	}
	return d.event, nil
}

func decodePayload(col sql.NullString) (audit.Payload, error) {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil, nil
	}
	var p audit.Payload
	if err := json.Unmarshal([]byte(col.String), &p); err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (audit.Event, error) {
	var data scannedEventData
	if err := row.Scan(data.scanDestinations()...); err != nil {
		return audit.Event{}, err
	}
	return data.toEvent()
}
