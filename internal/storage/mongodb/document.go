// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package mongodb

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/tomtom215/chronicle/internal/audit"
)

// BSON dates only carry milliseconds, so the microsecond timestamp used for
// filtering and sorting is stored alongside the readable date.
type document struct {
	ID            string           `bson:"_id"`
	Timestamp     time.Time        `bson:"timestamp"`
	TimestampUS   int64            `bson:"timestamp_us"`
	Action        string           `bson:"action"`
	ActorID       string           `bson:"actor_id"`
	ActorType     string           `bson:"actor_type"`
	Resource      string           `bson:"resource"`
	ResourceID    string           `bson:"resource_id"`
	Level         string           `bson:"level"`
	LevelRank     int              `bson:"level_rank"`
	Success       bool             `bson:"success"`
	Description   string           `bson:"description"`
	OldValues     map[string]any   `bson:"old_values,omitempty"`
	NewValues     map[string]any   `bson:"new_values,omitempty"`
	Metadata      map[string]any   `bson:"metadata,omitempty"`
	Context       *contextDocument `bson:"context,omitempty"`
	CorrelationID string           `bson:"correlation_id"`
	CreatedAt     time.Time        `bson:"created_at"`
}

type contextDocument struct {
	IPAddress string         `bson:"ip_address,omitempty"`
	UserAgent string         `bson:"user_agent,omitempty"`
	Method    string         `bson:"method,omitempty"`
	Endpoint  string         `bson:"endpoint,omitempty"`
	Referrer  string         `bson:"referrer,omitempty"`
	Custom    map[string]any `bson:"custom,omitempty"`
}

// storedDocument is the read shape. Payloads stay raw until converted, so
// nested values decode the same way they do in the SQL backends.
type storedDocument struct {
	ID            string         `bson:"_id"`
	TimestampUS   int64          `bson:"timestamp_us"`
	Action        string         `bson:"action"`
	ActorID       string         `bson:"actor_id"`
	ActorType     string         `bson:"actor_type"`
	Resource      string         `bson:"resource"`
	ResourceID    string         `bson:"resource_id"`
	Level         string         `bson:"level"`
	Success       bool           `bson:"success"`
	Description   string         `bson:"description"`
	OldValues     bson.Raw       `bson:"old_values,omitempty"`
	NewValues     bson.Raw       `bson:"new_values,omitempty"`
	Metadata      bson.Raw       `bson:"metadata,omitempty"`
	Context       *storedContext `bson:"context,omitempty"`
	CorrelationID string         `bson:"correlation_id"`
}

type storedContext struct {
	IPAddress string   `bson:"ip_address,omitempty"`
	UserAgent string   `bson:"user_agent,omitempty"`
	Method    string   `bson:"method,omitempty"`
	Endpoint  string   `bson:"endpoint,omitempty"`
	Referrer  string   `bson:"referrer,omitempty"`
	Custom    bson.Raw `bson:"custom,omitempty"`
}

func toDocument(e *audit.Event, now time.Time) document {
	ts := e.Timestamp.UTC()
	doc := document{
		ID:            e.ID,
		Timestamp:     ts,
		TimestampUS:   ts.UnixMicro(),
		Action:        string(e.Action),
		ActorID:       e.ActorID,
		ActorType:     string(e.ActorType),
		Resource:      e.Resource,
		ResourceID:    e.ResourceID,
		Level:         string(e.Level),
		LevelRank:     e.Level.Rank(),
		Success:       e.Success,
		Description:   e.Description,
		OldValues:     e.OldValues,
		NewValues:     e.NewValues,
		Metadata:      e.Metadata,
		CorrelationID: e.CorrelationID,
		CreatedAt:     now.UTC(),
	}
	if !e.Context.IsZero() {
		doc.Context = &contextDocument{
			IPAddress: e.Context.IPAddress,
			UserAgent: e.Context.UserAgent,
			Method:    e.Context.Method,
			Endpoint:  e.Context.Endpoint,
			Referrer:  e.Context.Referrer,
			Custom:    e.Context.Custom,
		}
	}
	return doc
}

func (d *storedDocument) toEvent() (audit.Event, error) {
	e := audit.Event{
		ID:            d.ID,
		Timestamp:     time.UnixMicro(d.TimestampUS).UTC(),
		Action:        audit.Action(d.Action),
		ActorID:       d.ActorID,
		ActorType:     audit.ActorType(d.ActorType),
		Resource:      d.Resource,
		ResourceID:    d.ResourceID,
		Level:         audit.Level(d.Level),
		Success:       d.Success,
		Description:   d.Description,
		CorrelationID: d.CorrelationID,
	}

	var err error
	if e.OldValues, err = decodePayload(d.OldValues); err != nil {
		return e, fmt.Errorf("decode old_values of %s: %w", d.ID, err)
	}
	if e.NewValues, err = decodePayload(d.NewValues); err != nil {
		return e, fmt.Errorf("decode new_values of %s: %w", d.ID, err)
	}
	if e.Metadata, err = decodePayload(d.Metadata); err != nil {
		return e, fmt.Errorf("decode metadata of %s: %w", d.ID, err)
	}
	if d.Context != nil {
		custom, err := decodePayload(d.Context.Custom)
		if err != nil {
			return e, fmt.Errorf("decode context of %s: %w", d.ID, err)
		}
		e.Context = &audit.RequestContext{
			IPAddress: d.Context.IPAddress,
			UserAgent: d.Context.UserAgent,
			Method:    d.Context.Method,
			Endpoint:  d.Context.Endpoint,
			Referrer:  d.Context.Referrer,
			Custom:    custom,
		}
	}
	return e, nil
}

// decodePayload converts a BSON subdocument through relaxed extended JSON so
// numbers come back as float64, matching every other backend.
func decodePayload(raw bson.Raw) (audit.Payload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, err
	}
	var p audit.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, nil
	}
	return p, nil
}
