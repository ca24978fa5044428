// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/chronicle/internal/validation"
)

const (
	// DefaultQueryLimit is applied when a filter leaves Limit at zero.
	DefaultQueryLimit = 50

	// MaxQueryLimit caps a single page.
	MaxQueryLimit = 1000
)

// Sort directions accepted by QueryFilter.OrderDir.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// OrderFields lists the fields a query may be ordered by.
var OrderFields = []string{
	"timestamp", "action", "level", "resource",
	"actor_id", "actor_type", "resource_id", "correlation_id",
}

// QueryFilter selects stored events. String fields are exact matches and an
// empty value means "any". StartTime is inclusive and EndTime exclusive.
type QueryFilter struct {
	EventID       string     `json:"event_id,omitempty" validate:"max=64"`
	ActorID       string     `json:"actor_id,omitempty" validate:"max=255"`
	ActorType     ActorType  `json:"actor_type,omitempty" validate:"omitempty,oneof=user system service admin anonymous"`
	Resource      string     `json:"resource,omitempty" validate:"max=128"`
	ResourceID    string     `json:"resource_id,omitempty" validate:"max=255"`
	Action        Action     `json:"action,omitempty" validate:"omitempty,oneof=create read update delete export import login login_failed logout password_change password_reset account_locked account_unlocked access_denied permission_denied permission_grant permission_granted permission_revoke config_change system_start system_stop"`
	Level         Level      `json:"level,omitempty" validate:"omitempty,oneof=low medium high critical"`
	CorrelationID string     `json:"correlation_id,omitempty" validate:"max=255"`
	Success       *bool      `json:"success,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Search        string     `json:"search,omitempty" validate:"max=256"`
	Offset        int        `json:"offset" validate:"min=0"`
	Limit         int        `json:"limit" validate:"min=0,max=1000"`
	OrderBy       string     `json:"order_by,omitempty" validate:"omitempty,oneof=timestamp action level resource actor_id actor_type resource_id correlation_id"`
	OrderDir      string     `json:"order_dir,omitempty" validate:"omitempty,oneof=asc desc"`
}

// DefaultQueryFilter returns a filter for the most recent events.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{
		Limit:    DefaultQueryLimit,
		OrderBy:  "timestamp",
		OrderDir: OrderDesc,
	}
}

// Normalize validates the filter and fills in defaults. Every adapter calls it
// before touching storage, so a malformed filter fails the same way
// everywhere.
func (f QueryFilter) Normalize() (QueryFilter, error) {
	if verr := validation.ValidateStruct(&f); verr != nil {
		return f, fmt.Errorf("%w: %w", ErrInvalidFilter, verr)
	}
	if f.StartTime != nil && f.EndTime != nil && !f.StartTime.Before(*f.EndTime) {
		return f, fmt.Errorf("%w: start_time must be before end_time", ErrInvalidFilter)
	}
	if f.Limit == 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.OrderBy == "" {
		f.OrderBy = "timestamp"
	}
	if f.OrderDir == "" {
		f.OrderDir = OrderDesc
	}
	f.Search = strings.TrimSpace(f.Search)
	return f, nil
}

// CeilMicro rounds t up to the next whole microsecond. Stored timestamps have
// microsecond precision, so a bound carrying a sub-microsecond remainder must
// be raised before it is compared with them: an event at T is older than
// T+500ns and precedes an EndTime of T+500ns.
func CeilMicro(t time.Time) time.Time {
	c := t.Truncate(time.Microsecond)
	if c.Before(t) {
		c = c.Add(time.Microsecond)
	}
	return c
}

// Descending reports whether results are ordered high to low.
func (f QueryFilter) Descending() bool {
	return f.OrderDir != OrderAsc
}

// SearchTerms splits the free-text search into lower-cased tokens.
func (f QueryFilter) SearchTerms() []string {
	return strings.Fields(strings.ToLower(f.Search))
}

// Matches reports whether the event satisfies every criterion of the filter.
// Backends without native query support use it.
//
//nolint:gocyclo // complexity inherent to multi-criteria filter matching
func (f *QueryFilter) Matches(e *Event) bool {
	if f.EventID != "" && e.ID != f.EventID {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.ActorType != "" && e.ActorType != f.ActorType {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}

	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && !e.Timestamp.Before(*f.EndTime) {
		return false
	}

	if terms := f.SearchTerms(); len(terms) > 0 {
		desc := strings.ToLower(e.Description)
		for _, term := range terms {
			if !strings.Contains(desc, term) {
				return false
			}
		}
	}

	return true
}

// SortEvents orders events in place by the filter's order field and
// direction. Ties are broken by ID so pagination is stable.
func SortEvents(events []Event, f QueryFilter) {
	desc := f.Descending()
	sort.SliceStable(events, func(i, j int) bool {
		c := compareField(&events[i], &events[j], f.OrderBy)
		if c == 0 {
			c = strings.Compare(events[i].ID, events[j].ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareField(a, b *Event, field string) int {
	switch field {
	case "action":
		return strings.Compare(string(a.Action), string(b.Action))
	case "level":
		return a.Level.Rank() - b.Level.Rank()
	case "resource":
		return strings.Compare(a.Resource, b.Resource)
	case "actor_id":
		return strings.Compare(a.ActorID, b.ActorID)
	case "actor_type":
		return strings.Compare(string(a.ActorType), string(b.ActorType))
	case "resource_id":
		return strings.Compare(a.ResourceID, b.ResourceID)
	case "correlation_id":
		return strings.Compare(a.CorrelationID, b.CorrelationID)
	default:
		return a.Timestamp.Compare(b.Timestamp)
	}
}

// SelectPage filters, sorts and paginates an in-memory candidate set. The
// filter must already be normalized.
func SelectPage(candidates []Event, f QueryFilter) *Page {
	matched := make([]Event, 0, len(candidates))
	for i := range candidates {
		if f.Matches(&candidates[i]) {
			matched = append(matched, candidates[i])
		}
	}
	SortEvents(matched, f)

	total := int64(len(matched))
	start := min(f.Offset, len(matched))
	end := min(start+f.Limit, len(matched))

	items := make([]Event, end-start)
	copy(items, matched[start:end])
	return NewPage(items, total, f)
}

// AccumulateStats builds stats from an in-memory candidate set.
func AccumulateStats(events []Event, tr TimeRange) *Stats {
	stats := NewStats(tr)
	var successes int64
	var oldest, newest *time.Time

	for i := range events {
		e := &events[i]
		if !tr.Contains(e.Timestamp) {
			continue
		}
		stats.TotalEvents++
		stats.EventsByAction[string(e.Action)]++
		stats.EventsByResource[e.Resource]++
		stats.EventsByLevel[string(e.Level)]++
		if e.Success {
			successes++
		}
		if oldest == nil || e.Timestamp.Before(*oldest) {
			t := e.Timestamp
			oldest = &t
		}
		if newest == nil || e.Timestamp.After(*newest) {
			t := e.Timestamp
			newest = &t
		}
	}

	stats.Finalize(successes, oldest, newest)
	return stats
}
