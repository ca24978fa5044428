// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

import (
	"context"
	"time"
)

// Action is the verb an audit event records.
type Action string

const (
	// Data lifecycle actions
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
	ActionImport Action = "import"

	// Authentication actions
	ActionLogin           Action = "login"
	ActionLoginFailed     Action = "login_failed"
	ActionLogout          Action = "logout"
	ActionPasswordChange  Action = "password_change"
	ActionPasswordReset   Action = "password_reset"
	ActionAccountLocked   Action = "account_locked"
	ActionAccountUnlocked Action = "account_unlocked"

	// Authorization actions
	ActionAccessDenied      Action = "access_denied"
	ActionPermissionDenied  Action = "permission_denied"
	ActionPermissionGrant   Action = "permission_grant"
	ActionPermissionGranted Action = "permission_granted"
	ActionPermissionRevoke  Action = "permission_revoke"

	// System actions
	ActionConfigChange Action = "config_change"
	ActionSystemStart  Action = "system_start"
	ActionSystemStop   Action = "system_stop"
)

// ActorType identifies what kind of principal performed an action.
type ActorType string

const (
	ActorUser      ActorType = "user"
	ActorSystem    ActorType = "system"
	ActorService   ActorType = "service"
	ActorAdmin     ActorType = "admin"
	ActorAnonymous ActorType = "anonymous"
)

// Payload is a free-form, caller-defined key/value tree. Values are scalars,
// nested maps, or slices of either.
type Payload map[string]any

// Event represents a single audit record.
//
// ID and Timestamp are owned by the engine: whatever the caller puts there is
// overwritten at admission.
type Event struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	Action        Action          `json:"action" validate:"required,oneof=create read update delete export import login login_failed logout password_change password_reset account_locked account_unlocked access_denied permission_denied permission_grant permission_granted permission_revoke config_change system_start system_stop"`
	ActorID       string          `json:"actor_id,omitempty" validate:"max=255"`
	ActorType     ActorType       `json:"actor_type" validate:"required,oneof=user system service admin anonymous"`
	Resource      string          `json:"resource" validate:"required,max=128"`
	ResourceID    string          `json:"resource_id,omitempty" validate:"max=255"`
	Level         Level           `json:"level" validate:"omitempty,oneof=low medium high critical"`
	Success       bool            `json:"success"`
	Description   string          `json:"description,omitempty" validate:"max=4096"`
	OldValues     Payload         `json:"old_values,omitempty"`
	NewValues     Payload         `json:"new_values,omitempty"`
	Metadata      Payload         `json:"metadata,omitempty"`
	Context       *RequestContext `json:"context,omitempty" validate:"omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty" validate:"max=255"`
}

// RequestContext holds request-shaped metadata about where an event came from.
type RequestContext struct {
	IPAddress string  `json:"ip_address,omitempty" validate:"max=64"`
	UserAgent string  `json:"user_agent,omitempty" validate:"max=1024"`
	Method    string  `json:"method,omitempty" validate:"max=16"`
	Endpoint  string  `json:"endpoint,omitempty" validate:"max=2048"`
	Referrer  string  `json:"referrer,omitempty" validate:"max=2048"`
	Custom    Payload `json:"custom,omitempty"`
}

// IsZero reports whether no request field is set.
func (c *RequestContext) IsZero() bool {
	return c == nil || (c.IPAddress == "" && c.UserAgent == "" && c.Method == "" &&
		c.Endpoint == "" && c.Referrer == "" && len(c.Custom) == 0)
}

// Store is the capability set every storage backend implements.
//
// Write and WriteBatch must surface every failure so the engine can retry.
// WriteBatch of an empty slice is a no-op. Writes are idempotent on ID: an
// event that is already stored is silently skipped.
type Store interface {
	// Write persists a single event.
	Write(ctx context.Context, event *Event) error

	// WriteBatch persists events as one unit where the backend allows it.
	WriteBatch(ctx context.Context, events []Event) error

	// Query returns one page of events matching the filter.
	Query(ctx context.Context, filter QueryFilter) (*Page, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// GetStats aggregates events inside the time range.
	GetStats(ctx context.Context, tr TimeRange) (*Stats, error)

	// Purge deletes events with a timestamp strictly before olderThan.
	Purge(ctx context.Context, olderThan time.Time) (int64, error)

	// HealthCheck is a cheap liveness probe. Any failure yields false.
	HealthCheck(ctx context.Context) bool

	// Close releases the backend. Calling it more than once is safe.
	Close() error
}

// Page is one window of query results.
type Page struct {
	Items   []Event `json:"items"`
	Total   int64   `json:"total"`
	Offset  int     `json:"offset"`
	Limit   int     `json:"limit"`
	HasMore bool    `json:"has_more"`
}

// NewPage assembles a page and derives HasMore.
func NewPage(items []Event, total int64, filter QueryFilter) *Page {
	if items == nil {
		items = []Event{}
	}
	return &Page{
		Items:   items,
		Total:   total,
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: int64(filter.Offset+len(items)) < total,
	}
}

// TimeRange bounds a statistics request. Start is inclusive, End exclusive.
// A nil bound is open.
type TimeRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the range.
func (tr TimeRange) Contains(t time.Time) bool {
	if tr.Start != nil && t.Before(*tr.Start) {
		return false
	}
	if tr.End != nil && !t.Before(*tr.End) {
		return false
	}
	return true
}

// Stats aggregates stored events.
type Stats struct {
	TotalEvents      int64            `json:"total_events"`
	EventsByAction   map[string]int64 `json:"events_by_action"`
	EventsByResource map[string]int64 `json:"events_by_resource"`
	EventsByLevel    map[string]int64 `json:"events_by_level"`
	SuccessRate      float64          `json:"success_rate"`
	TimeRange        TimeRange        `json:"time_range"`
}

// NewStats returns empty stats for the requested range.
func NewStats(tr TimeRange) *Stats {
	return &Stats{
		EventsByAction:   make(map[string]int64),
		EventsByResource: make(map[string]int64),
		EventsByLevel:    make(map[string]int64),
		TimeRange:        tr,
	}
}

// Finalize computes the success rate as a percentage and fills unset range
// bounds with the observed oldest and newest timestamps.
func (s *Stats) Finalize(successes int64, oldest, newest *time.Time) {
	if s.TotalEvents > 0 {
		s.SuccessRate = float64(successes) / float64(s.TotalEvents) * 100
	} else {
		s.SuccessRate = 0
	}
	if s.TimeRange.Start == nil && oldest != nil {
		t := oldest.UTC()
		s.TimeRange.Start = &t
	}
	if s.TimeRange.End == nil && newest != nil {
		t := newest.UTC()
		s.TimeRange.End = &t
	}
}
