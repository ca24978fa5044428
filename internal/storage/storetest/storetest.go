// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package storetest holds the behavioral checks every audit.Store backend
// must pass. Adapter tests call Run with a constructor for a fresh, empty
// store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/chronicle/internal/audit"
)

// OpenFunc returns a new empty store. Implementations register cleanup on t.
type OpenFunc func(t *testing.T) audit.Store

// Base is the timestamp of the first fixture event.
var Base = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

// Fixtures returns five events one minute apart, IDs ev-1 through ev-5.
func Fixtures() []audit.Event {
	mk := func(n int, action audit.Action, actor, resource string, level audit.Level, success bool, desc string) audit.Event {
		return audit.Event{
			ID:            fmt.Sprintf("ev-%d", n),
			Timestamp:     Base.Add(time.Duration(n-1) * time.Minute),
			Action:        action,
			ActorID:       actor,
			ActorType:     audit.ActorUser,
			Resource:      resource,
			ResourceID:    fmt.Sprintf("%s-%d", resource, n),
			Level:         level,
			Success:       success,
			Description:   desc,
			CorrelationID: "req-" + actor,
		}
	}
	events := []audit.Event{
		mk(1, audit.ActionLogin, "alice", "session", audit.LevelLow, true, "alice signed in from office network"),
		mk(2, audit.ActionUpdate, "alice", "document", audit.LevelMedium, true, "quota raised for engineering team"),
		mk(3, audit.ActionDelete, "bob", "document", audit.LevelHigh, true, "disk quota exceeded on archive volume"),
		mk(4, audit.ActionLoginFailed, "bob", "session", audit.LevelCritical, false, "bob failed password verification"),
		mk(5, audit.ActionRead, "carol", "report", audit.LevelLow, true, "carol exported monthly report"),
	}
	events[1].OldValues = audit.Payload{"quota": 10.0}
	events[1].NewValues = audit.Payload{"quota": 20.0, "tags": []any{"eng", "ops"}}
	events[1].Metadata = audit.Payload{"service": "billing", "nested": map[string]any{"region": "eu"}}
	events[1].Context = &audit.RequestContext{
		IPAddress: "10.1.2.3",
		UserAgent: "chronicle-test",
		Method:    "PATCH",
		Endpoint:  "/documents/2",
		Custom:    audit.Payload{"tenant": "acme"},
	}
	return events
}

// Run exercises the full audit.Store contract.
func Run(t *testing.T, open OpenFunc) {
	t.Helper()

	t.Run("WriteAndQueryRoundTrip", func(t *testing.T) { testRoundTrip(t, open(t)) })
	t.Run("WriteBatchIdempotent", func(t *testing.T) { testIdempotent(t, open(t)) })
	t.Run("EmptyBatch", func(t *testing.T) { testEmptyBatch(t, open(t)) })
	t.Run("Filters", func(t *testing.T) { testFilters(t, open(t)) })
	t.Run("Pagination", func(t *testing.T) { testPagination(t, open(t)) })
	t.Run("Ordering", func(t *testing.T) { testOrdering(t, open(t)) })
	t.Run("Search", func(t *testing.T) { testSearch(t, open(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, open(t)) })
	t.Run("Purge", func(t *testing.T) { testPurge(t, open(t)) })
	t.Run("SubMicrosecondBounds", func(t *testing.T) { testSubMicrosecondBounds(t, open(t)) })
	t.Run("InvalidFilter", func(t *testing.T) { testInvalidFilter(t, open(t)) })
	t.Run("HealthCheckAndClose", func(t *testing.T) { testClose(t, open(t)) })
}

func seed(t *testing.T, s audit.Store) []audit.Event {
	t.Helper()
	events := Fixtures()
	if err := s.WriteBatch(context.Background(), events); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	return events
}

func query(t *testing.T, s audit.Store, f audit.QueryFilter) *audit.Page {
	t.Helper()
	page, err := s.Query(context.Background(), f)
	if err != nil {
		t.Fatalf("Query(%+v): %v", f, err)
	}
	return page
}

// IDs returns the event IDs of a page in order.
func IDs(page *audit.Page) []string {
	ids := make([]string, len(page.Items))
	for i := range page.Items {
		ids[i] = page.Items[i].ID
	}
	return ids
}

func expectIDs(t *testing.T, page *audit.Page, want ...string) {
	t.Helper()
	got := IDs(page)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func testRoundTrip(t *testing.T, s audit.Store) {
	ctx := context.Background()
	events := Fixtures()
	want := events[1]
	if err := s.Write(ctx, &want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	page := query(t, s, audit.QueryFilter{EventID: want.ID})
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 event, got %d", len(page.Items))
	}
	got := page.Items[0]

	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}
	if got.Action != want.Action || got.ActorID != want.ActorID || got.ActorType != want.ActorType ||
		got.Resource != want.Resource || got.ResourceID != want.ResourceID || got.Level != want.Level ||
		got.Success != want.Success || got.Description != want.Description || got.CorrelationID != want.CorrelationID {
		t.Errorf("scalar fields differ:\n got %+v\nwant %+v", got, want)
	}
	if got.OldValues["quota"] != 10.0 || got.NewValues["quota"] != 20.0 {
		t.Errorf("values = %v / %v", got.OldValues, got.NewValues)
	}
	if tags, ok := got.NewValues["tags"].([]any); !ok || len(tags) != 2 || tags[0] != "eng" {
		t.Errorf("tags = %#v", got.NewValues["tags"])
	}
	if nested, ok := got.Metadata["nested"].(map[string]any); !ok || nested["region"] != "eu" {
		t.Errorf("metadata = %#v", got.Metadata)
	}
	if got.Context == nil || got.Context.IPAddress != "10.1.2.3" || got.Context.Method != "PATCH" ||
		got.Context.Custom["tenant"] != "acme" {
		t.Errorf("context = %+v", got.Context)
	}

	// An event without payloads comes back without payloads.
	plain := events[0]
	if err := s.Write(ctx, &plain); err != nil {
		t.Fatalf("Write: %v", err)
	}
	page = query(t, s, audit.QueryFilter{EventID: plain.ID})
	if len(page.Items) != 1 || page.Items[0].Context != nil || len(page.Items[0].Metadata) != 0 {
		t.Errorf("expected event without context or metadata, got %+v", page.Items)
	}
}

func testIdempotent(t *testing.T, s audit.Store) {
	ctx := context.Background()
	events := seed(t, s)

	// Redelivery of an already stored batch, plus one new event, is accepted.
	extra := events[0]
	extra.ID = "ev-6"
	redelivered := append(append([]audit.Event{}, events...), extra)
	if err := s.WriteBatch(ctx, redelivered); err != nil {
		t.Fatalf("redelivered WriteBatch: %v", err)
	}
	if err := s.Write(ctx, &events[2]); err != nil {
		t.Fatalf("duplicate Write: %v", err)
	}

	n, err := s.Count(ctx, audit.QueryFilter{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 6 {
		t.Errorf("count = %d, want 6", n)
	}
}

func testEmptyBatch(t *testing.T, s audit.Store) {
	if err := s.WriteBatch(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
	n, err := s.Count(context.Background(), audit.QueryFilter{})
	if err != nil || n != 0 {
		t.Errorf("count = %d, %v; want 0", n, err)
	}
}

func testFilters(t *testing.T, s audit.Store) {
	seed(t, s)
	failed := false
	start := Base.Add(time.Minute)
	end := Base.Add(3 * time.Minute)

	tests := []struct {
		name   string
		filter audit.QueryFilter
		want   []string
	}{
		{"actor", audit.QueryFilter{ActorID: "alice"}, []string{"ev-2", "ev-1"}},
		{"resource", audit.QueryFilter{Resource: "document"}, []string{"ev-3", "ev-2"}},
		{"resource id", audit.QueryFilter{ResourceID: "report-5"}, []string{"ev-5"}},
		{"action", audit.QueryFilter{Action: audit.ActionLoginFailed}, []string{"ev-4"}},
		{"level", audit.QueryFilter{Level: audit.LevelLow}, []string{"ev-5", "ev-1"}},
		{"actor type", audit.QueryFilter{ActorType: audit.ActorSystem}, nil},
		{"correlation", audit.QueryFilter{CorrelationID: "req-bob"}, []string{"ev-4", "ev-3"}},
		{"success false", audit.QueryFilter{Success: &failed}, []string{"ev-4"}},
		{"half-open range", audit.QueryFilter{StartTime: &start, EndTime: &end}, []string{"ev-3", "ev-2"}},
		{"combined", audit.QueryFilter{ActorID: "bob", Level: audit.LevelHigh}, []string{"ev-3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := query(t, s, tt.filter)
			expectIDs(t, page, tt.want...)
			if page.Total != int64(len(tt.want)) {
				t.Errorf("total = %d, want %d", page.Total, len(tt.want))
			}
			n, err := s.Count(context.Background(), tt.filter)
			if err != nil || n != int64(len(tt.want)) {
				t.Errorf("Count = %d, %v; want %d", n, err, len(tt.want))
			}
		})
	}
}

func testPagination(t *testing.T, s audit.Store) {
	seed(t, s)

	page := query(t, s, audit.QueryFilter{Limit: 2})
	expectIDs(t, page, "ev-5", "ev-4")
	if page.Total != 5 || !page.HasMore || page.Limit != 2 || page.Offset != 0 {
		t.Errorf("page = %+v", page)
	}

	page = query(t, s, audit.QueryFilter{Limit: 2, Offset: 4})
	expectIDs(t, page, "ev-1")
	if page.HasMore {
		t.Error("last page should not report more")
	}

	page = query(t, s, audit.QueryFilter{Limit: 2, Offset: 10})
	if len(page.Items) != 0 || page.Total != 5 || page.HasMore {
		t.Errorf("page past the end = %+v", page)
	}
	if page.Items == nil {
		t.Error("items should be an empty slice, not nil")
	}
}

func testOrdering(t *testing.T, s audit.Store) {
	seed(t, s)

	expectIDs(t, query(t, s, audit.QueryFilter{OrderDir: audit.OrderAsc}),
		"ev-1", "ev-2", "ev-3", "ev-4", "ev-5")
	// Level sorts by severity; ties break on id.
	expectIDs(t, query(t, s, audit.QueryFilter{OrderBy: "level", OrderDir: audit.OrderAsc}),
		"ev-1", "ev-5", "ev-2", "ev-3", "ev-4")
	expectIDs(t, query(t, s, audit.QueryFilter{OrderBy: "level"}),
		"ev-4", "ev-3", "ev-2", "ev-5", "ev-1")
	expectIDs(t, query(t, s, audit.QueryFilter{OrderBy: "actor_id", OrderDir: audit.OrderAsc}),
		"ev-1", "ev-2", "ev-3", "ev-4", "ev-5")
}

func testSearch(t *testing.T, s audit.Store) {
	seed(t, s)

	expectIDs(t, query(t, s, audit.QueryFilter{Search: "quota"}), "ev-3", "ev-2")
	expectIDs(t, query(t, s, audit.QueryFilter{Search: "Quota archive"}), "ev-3")
	expectIDs(t, query(t, s, audit.QueryFilter{Search: "quota", ActorID: "alice"}), "ev-2")
	expectIDs(t, query(t, s, audit.QueryFilter{Search: "nonexistentterm"}))

	n, err := s.Count(context.Background(), audit.QueryFilter{Search: "quota"})
	if err != nil || n != 2 {
		t.Errorf("Count(search) = %d, %v; want 2", n, err)
	}
}

func testStats(t *testing.T, s audit.Store) {
	ctx := context.Background()

	empty, err := s.GetStats(ctx, audit.TimeRange{})
	if err != nil {
		t.Fatalf("GetStats on empty store: %v", err)
	}
	if empty.TotalEvents != 0 || empty.SuccessRate != 0 {
		t.Errorf("empty stats = %+v", empty)
	}

	seed(t, s)

	stats, err := s.GetStats(ctx, audit.TimeRange{})
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalEvents != 5 {
		t.Errorf("total = %d, want 5", stats.TotalEvents)
	}
	if stats.SuccessRate != 80 {
		t.Errorf("success rate = %v, want 80", stats.SuccessRate)
	}
	if stats.EventsByResource["document"] != 2 || stats.EventsByLevel["low"] != 2 || stats.EventsByAction["login"] != 1 {
		t.Errorf("breakdowns = %v %v %v", stats.EventsByAction, stats.EventsByResource, stats.EventsByLevel)
	}
	if stats.TimeRange.Start == nil || !stats.TimeRange.Start.Equal(Base) {
		t.Errorf("observed start = %v, want %v", stats.TimeRange.Start, Base)
	}
	if stats.TimeRange.End == nil || !stats.TimeRange.End.Equal(Base.Add(4*time.Minute)) {
		t.Errorf("observed end = %v", stats.TimeRange.End)
	}

	start, end := Base.Add(time.Minute), Base.Add(3*time.Minute)
	bounded, err := s.GetStats(ctx, audit.TimeRange{Start: &start, End: &end})
	if err != nil {
		t.Fatalf("GetStats(range): %v", err)
	}
	if bounded.TotalEvents != 2 || bounded.SuccessRate != 100 {
		t.Errorf("bounded stats = %+v", bounded)
	}
	if !bounded.TimeRange.Start.Equal(start) || !bounded.TimeRange.End.Equal(end) {
		t.Errorf("requested bounds should be echoed, got %+v", bounded.TimeRange)
	}
}

func testPurge(t *testing.T, s audit.Store) {
	ctx := context.Background()
	seed(t, s)

	n, err := s.Purge(ctx, Base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 2 {
		t.Errorf("purged = %d, want 2", n)
	}
	expectIDs(t, query(t, s, audit.QueryFilter{OrderDir: audit.OrderAsc}), "ev-3", "ev-4", "ev-5")

	// Purged descriptions must no longer be searchable.
	expectIDs(t, query(t, s, audit.QueryFilter{Search: "quota"}), "ev-3")

	n, err = s.Purge(ctx, Base)
	if err != nil || n != 0 {
		t.Errorf("second purge = %d, %v; want 0", n, err)
	}
}

// testSubMicrosecondBounds checks that bounds between two stored microseconds
// keep their meaning: ev-3 sits at Base+2m, which is before Base+2m+500ns.
func testSubMicrosecondBounds(t *testing.T, s audit.Store) {
	ctx := context.Background()
	seed(t, s)
	mid := Base.Add(2*time.Minute + 500*time.Nanosecond)

	expectIDs(t, query(t, s, audit.QueryFilter{EndTime: &mid, OrderDir: audit.OrderAsc}), "ev-1", "ev-2", "ev-3")
	expectIDs(t, query(t, s, audit.QueryFilter{StartTime: &mid, OrderDir: audit.OrderAsc}), "ev-4", "ev-5")

	if n, err := s.Count(ctx, audit.QueryFilter{EndTime: &mid}); err != nil || n != 3 {
		t.Errorf("Count(end) = %d, %v; want 3", n, err)
	}

	stats, err := s.GetStats(ctx, audit.TimeRange{Start: &mid})
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalEvents != 2 {
		t.Errorf("stats total = %d, want 2", stats.TotalEvents)
	}

	n, err := s.Purge(ctx, mid)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 3 {
		t.Errorf("purged = %d, want 3", n)
	}
	expectIDs(t, query(t, s, audit.QueryFilter{OrderDir: audit.OrderAsc}), "ev-4", "ev-5")
}

func testInvalidFilter(t *testing.T, s audit.Store) {
	ctx := context.Background()
	start := Base.Add(time.Hour)
	end := Base

	for name, f := range map[string]audit.QueryFilter{
		"negative offset": {Offset: -1},
		"limit too large": {Limit: audit.MaxQueryLimit + 1},
		"unknown order":   {OrderBy: "description"},
		"inverted range":  {StartTime: &start, EndTime: &end},
		"unknown level":   {Level: "severe"},
		"unknown action":  {Action: "teleport"},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Query(ctx, f); !errors.Is(err, audit.ErrInvalidFilter) {
				t.Errorf("Query error = %v, want ErrInvalidFilter", err)
			}
			if _, err := s.Count(ctx, f); !errors.Is(err, audit.ErrInvalidFilter) {
				t.Errorf("Count error = %v, want ErrInvalidFilter", err)
			}
		})
	}
}

func testClose(t *testing.T, s audit.Store) {
	ctx := context.Background()
	if !s.HealthCheck(ctx) {
		t.Fatal("fresh store should be healthy")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.HealthCheck(ctx) {
		t.Error("closed store should not be healthy")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	events := Fixtures()
	if err := s.Write(ctx, &events[0]); err == nil {
		t.Error("Write after Close should fail")
	}
}
