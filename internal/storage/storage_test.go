// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/metrics"
	"github.com/tomtom215/chronicle/internal/storage/storetest"
)

// fakeStore fails every call with err until err is cleared.
type fakeStore struct {
	err       error
	calls     atomic.Int32
	optimized atomic.Int32
	healthy   bool
}

func (f *fakeStore) Write(ctx context.Context, event *audit.Event) error {
	f.calls.Add(1)
	return f.err
}

func (f *fakeStore) WriteBatch(ctx context.Context, events []audit.Event) error {
	f.calls.Add(1)
	return f.err
}

func (f *fakeStore) Query(ctx context.Context, filter audit.QueryFilter) (*audit.Page, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &audit.Page{}, nil
}

func (f *fakeStore) Count(ctx context.Context, filter audit.QueryFilter) (int64, error) {
	f.calls.Add(1)
	return 7, f.err
}

func (f *fakeStore) GetStats(ctx context.Context, tr audit.TimeRange) (*audit.Stats, error) {
	f.calls.Add(1)
	return &audit.Stats{}, f.err
}

func (f *fakeStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	f.calls.Add(1)
	return 0, f.err
}

func (f *fakeStore) HealthCheck(ctx context.Context) bool { return f.healthy }

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) Optimize(ctx context.Context) error {
	f.optimized.Add(1)
	return nil
}

func TestOpen_UnknownKind(t *testing.T) {
	store, err := Open(context.Background(), Config{Kind: "cassandra"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if store != nil {
		t.Errorf("expected nil store, got %T", store)
	}
}

func TestOpen_FailureReturnsNilInterface(t *testing.T) {
	store, err := Open(context.Background(), Config{Kind: KindSQLite})
	if err == nil {
		t.Fatal("expected error for sqlite without path")
	}
	if store != nil {
		t.Errorf("failed open returned non-nil store %T", store)
	}
}

func TestOpen_Contract(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(t *testing.T) Config
	}{
		{"memory", func(t *testing.T) Config { return Config{Kind: KindMemory} }},
		{"sqlite", func(t *testing.T) Config {
			return Config{Kind: KindSQLite, Path: filepath.Join(t.TempDir(), "audit.db")}
		}},
		{"badger", func(t *testing.T) Config { return Config{Kind: KindBadger, Path: t.TempDir()} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storetest.Run(t, func(t *testing.T) audit.Store {
				s, err := Open(context.Background(), tt.cfg(t))
				if err != nil {
					t.Fatalf("Open: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			})
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"sqlite with path", Config{Kind: KindSQLite, Path: "audit.db"}, false},
		{"sqlite without path", Config{Kind: KindSQLite}, true},
		{"badger without path", Config{Kind: KindBadger}, true},
		{"postgres with dsn", Config{Kind: KindPostgres, DSN: "postgres://localhost/audit"}, false},
		{"mysql without dsn", Config{Kind: KindMySQL}, true},
		{"mongodb without database", Config{Kind: KindMongoDB, DSN: "mongodb://localhost"}, true},
		{"mongodb", Config{Kind: KindMongoDB, DSN: "mongodb://localhost", Database: "audit"}, false},
		{"empty kind", Config{}, true},
		{"unknown kind", Config{Kind: "redis"}, true},
		{"negative pool", Config{Kind: KindMemory, MaxOpenConns: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKindNetwork(t *testing.T) {
	for _, k := range []Kind{KindPostgres, KindMySQL, KindMongoDB} {
		if !k.Network() {
			t.Errorf("%s should be a network kind", k)
		}
	}
	for _, k := range []Kind{KindMemory, KindSQLite, KindDuckDB, KindBadger} {
		if k.Network() {
			t.Errorf("%s should not be a network kind", k)
		}
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	inner := &fakeStore{err: errors.New("connection refused"), healthy: true}
	store := WithCircuitBreaker(inner, "test-open", CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     time.Minute,
		MaxRequests: 1,
	})

	for i := 0; i < 2; i++ {
		if err := store.WriteBatch(ctx, storetest.Fixtures()); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}

	err := store.WriteBatch(ctx, storetest.Fixtures())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected ErrOpenState, got %v", err)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("inner called %d times, want 2", got)
	}
	if store.HealthCheck(ctx) {
		t.Error("HealthCheck should report false while open")
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-open")); got != 2 {
		t.Errorf("breaker state gauge = %v, want 2", got)
	}
}

func TestCircuitBreaker_Recovers(t *testing.T) {
	ctx := context.Background()
	inner := &fakeStore{err: errors.New("timeout"), healthy: true}
	store := WithCircuitBreaker(inner, "test-recover", CircuitBreakerConfig{
		MaxFailures: 1,
		Timeout:     50 * time.Millisecond,
		MaxRequests: 1,
	})

	_ = store.Write(ctx, &audit.Event{ID: "x"})
	if store.HealthCheck(ctx) {
		t.Fatal("breaker should be open")
	}

	inner.err = nil
	time.Sleep(100 * time.Millisecond)

	if err := store.Write(ctx, &audit.Event{ID: "x"}); err != nil {
		t.Fatalf("trial write: %v", err)
	}
	if !store.HealthCheck(ctx) {
		t.Error("breaker should be closed after a successful trial")
	}
	if got := store.(*breakerStore).State(); got != "closed" {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestCircuitBreaker_CallerErrorsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	inner := &fakeStore{err: fmt.Errorf("%w: bad order", audit.ErrInvalidFilter), healthy: true}
	store := WithCircuitBreaker(inner, "test-caller", CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		if _, err := store.Query(ctx, audit.QueryFilter{}); !errors.Is(err, audit.ErrInvalidFilter) {
			t.Fatalf("attempt %d: expected ErrInvalidFilter, got %v", i, err)
		}
	}
	if !store.HealthCheck(ctx) {
		t.Error("invalid filters must not open the breaker")
	}
}

func TestCircuitBreaker_PassesResults(t *testing.T) {
	inner := &fakeStore{healthy: true}
	store := WithCircuitBreaker(inner, "test-results", CircuitBreakerConfig{})

	n, err := store.Count(context.Background(), audit.QueryFilter{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 7 {
		t.Errorf("Count = %d, want 7", n)
	}
}

func TestInstrument_RecordsErrors(t *testing.T) {
	ctx := context.Background()
	inner := &fakeStore{err: errors.New("disk full")}
	store := Instrument(inner, "test-instrument")

	before := testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("test-instrument", "write_batch"))
	_ = store.WriteBatch(ctx, storetest.Fixtures())
	after := testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("test-instrument", "write_batch"))
	if after-before != 1 {
		t.Errorf("store errors increased by %v, want 1", after-before)
	}

	inner.err = nil
	before = testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("test-instrument", "query"))
	if _, err := store.Query(ctx, audit.QueryFilter{}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := testutil.ToFloat64(metrics.StoreErrors.WithLabelValues("test-instrument", "query")); got != before {
		t.Errorf("successful query counted as error")
	}
}

func TestOptimize_UnwrapsDecorators(t *testing.T) {
	inner := &fakeStore{healthy: true}
	store := Instrument(WithCircuitBreaker(inner, "test-optimize", CircuitBreakerConfig{}), "test-optimize")

	if err := Optimize(context.Background(), store); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if got := inner.optimized.Load(); got != 1 {
		t.Errorf("Optimize reached inner %d times, want 1", got)
	}

	if err := Optimize(context.Background(), audit.NewMemoryStore(0)); err != nil {
		t.Errorf("Optimize on store without maintenance: %v", err)
	}
}
