// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package main

import (
	"context"
	"testing"

	"github.com/tomtom215/chronicle/internal/audit"
)

func TestRecordLifecycle(t *testing.T) {
	store := audit.NewMemoryStore(100)
	logger, err := audit.NewLogger(audit.DefaultConfig(), store)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	recordLifecycle(logger, audit.ActionSystemStart, "Chronicle started")
	recordLifecycle(logger, audit.ActionSystemStop, "Chronicle stopping")
	if err := logger.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	t.Cleanup(func() { shutdownEngine(logger) })

	page, err := store.Query(context.Background(), audit.QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("stored %d events, want 2", len(page.Items))
	}

	// Both events may share a microsecond, so order is not asserted.
	seen := map[audit.Action]bool{}
	for _, e := range page.Items {
		seen[e.Action] = true
		if e.ActorType != audit.ActorSystem || e.Resource != "system" {
			t.Errorf("event = %+v", e)
		}
		if e.Level != audit.LevelMedium {
			t.Errorf("%s level = %s, want medium", e.Action, e.Level)
		}
	}
	if !seen[audit.ActionSystemStart] || !seen[audit.ActionSystemStop] {
		t.Errorf("actions = %v, want system_start and system_stop", seen)
	}
}
