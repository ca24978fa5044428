// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestMemoryStore_WriteBatchSkipsDuplicates(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()
	events := sampleEvents(time.Now().UTC())

	if err := store.WriteBatch(ctx, nil); err != nil {
		t.Fatalf("empty WriteBatch failed: %v", err)
	}
	if err := store.WriteBatch(ctx, events); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}
	if err := store.WriteBatch(ctx, events[:2]); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if store.Len() != len(events) {
		t.Errorf("expected %d events after redelivery, got %d", len(events), store.Len())
	}
}

func TestMemoryStore_Eviction(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		e := Event{ID: string(rune('a' + i)), Timestamp: time.Now()}
		if err := store.Write(ctx, &e); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if store.Len() > 10 {
		t.Errorf("expected at most 10 events, got %d", store.Len())
	}
	if store.Events()[0].ID == "a" {
		t.Error("expected oldest event to be evicted")
	}
}

func TestMemoryStore_Purge(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.WriteBatch(ctx, sampleEvents(base)); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}

	removed, err := store.Purge(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 event strictly before cutoff, got %d", removed)
	}
	if store.Len() != 3 {
		t.Errorf("expected 3 remaining, got %d", store.Len())
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if store.HealthCheck(ctx) {
		t.Error("closed store reported healthy")
	}
	if err := store.WriteBatch(ctx, sampleEvents(time.Now())); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := store.Query(ctx, QueryFilter{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryStore_StatsEmpty(t *testing.T) {
	stats, err := NewMemoryStore(10).GetStats(context.Background(), TimeRange{})
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalEvents != 0 || stats.SuccessRate != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestJSONExporter(t *testing.T) {
	exp := &JSONExporter{}
	data, err := exp.Export(sampleEvents(time.Now().UTC()))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var decoded []Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("exported JSON does not decode: %v", err)
	}
	if len(decoded) != 4 || decoded[2].Action != ActionDelete {
		t.Errorf("unexpected decoded events: %+v", decoded)
	}

	empty, _ := exp.Export(nil)
	if string(empty) != "[]" {
		t.Errorf("expected empty array, got %s", empty)
	}
}

func TestCEFExporter(t *testing.T) {
	exp := NewCEFExporter()
	events := []Event{{
		ID:          "evt-1",
		Timestamp:   time.UnixMilli(1700000000000),
		Action:      ActionDelete,
		ActorID:     "u=1",
		ActorType:   ActorAdmin,
		Resource:    "note",
		ResourceID:  "n|1",
		Level:       LevelHigh,
		Success:     true,
		Description: "Deleted | note",
		Context:     &RequestContext{IPAddress: "10.1.1.1"},
	}}

	data, err := exp.Export(events)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	line := string(data)

	checks := []string{
		"CEF:0|Chronicle|AuditEngine|1.0|delete|Deleted \\| note|8|",
		"rt=1700000000000",
		"suid=u\\=1",
		"src=10.1.1.1",
		"duid=n|1",
		"outcome=success",
		"externalId=evt-1",
	}
	for _, want := range checks {
		if !strings.Contains(line, want) {
			t.Errorf("CEF line missing %q:\n%s", want, line)
		}
	}
}

func TestLogSink_Throttles(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf), time.Hour, 2)

	for i := 0; i < 5; i++ {
		sink.Report(Report{Kind: ReportRetry, Message: "retrying", Err: errWriteFailed})
	}
	sink.Report(Report{Kind: ReportRejected, Message: "rejected", Err: ErrInvalidEvent})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 2 throttled lines plus 1 rejection, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[2], `"kind":"rejected"`) {
		t.Errorf("expected rejection to bypass throttling, got %s", lines[2])
	}
	if sink.suppressed != 3 {
		t.Errorf("expected 3 suppressed reports, got %d", sink.suppressed)
	}
}
