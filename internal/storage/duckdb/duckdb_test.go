// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

//go:build integration

package duckdb

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/storage/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) audit.Store {
		s, err := Open(context.Background(), Options{Path: MemoryPath})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpen_CreatesTable(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Options{Path: filepath.Join(t.TempDir(), "audit.duckdb"), Threads: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var tableName string
	err = s.DB().QueryRowContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_name = 'audit_events'").Scan(&tableName)
	if err != nil {
		t.Fatalf("Table audit_events does not exist: %v", err)
	}
	if tableName != "audit_events" {
		t.Errorf("Expected table name 'audit_events', got '%s'", tableName)
	}
}

func TestSearch_EscapesWildcards(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Options{Path: MemoryPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	events := storetest.Fixtures()
	events[0].Description = "usage at 100% of plan"
	if err := s.WriteBatch(ctx, events); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	n, err := s.Count(ctx, audit.QueryFilter{Search: "100%"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	n, err = s.Count(ctx, audit.QueryFilter{Search: "_"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("underscore should match literally, got %d", n)
	}
}

func TestConnString(t *testing.T) {
	dsn := connString(Options{Path: "/data/audit.duckdb", Threads: 4, MaxMemory: "512MB"})
	for _, want := range []string{"access_mode=read_write", "threads=4", "max_memory=512MB", "autoinstall_known_extensions=false"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
	if strings.Contains(connString(Options{Path: MemoryPath}), "access_mode") {
		t.Error("memory DSN should not set access_mode")
	}
}
