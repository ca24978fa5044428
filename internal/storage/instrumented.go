// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package storage

import (
	"context"
	"time"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/metrics"
)

// instrumentedStore records latency and errors for every store operation.
type instrumentedStore struct {
	inner audit.Store
	name  string
}

// Instrument wraps store with Prometheus operation metrics labelled by name.
func Instrument(store audit.Store, name string) audit.Store {
	return &instrumentedStore{inner: store, name: name}
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(s.name, op, time.Since(start), err)
}

func (s *instrumentedStore) Write(ctx context.Context, event *audit.Event) error {
	start := time.Now()
	err := s.inner.Write(ctx, event)
	s.observe("write", start, err)
	return err
}

func (s *instrumentedStore) WriteBatch(ctx context.Context, events []audit.Event) error {
	start := time.Now()
	err := s.inner.WriteBatch(ctx, events)
	s.observe("write_batch", start, err)
	return err
}

func (s *instrumentedStore) Query(ctx context.Context, filter audit.QueryFilter) (*audit.Page, error) {
	start := time.Now()
	page, err := s.inner.Query(ctx, filter)
	s.observe("query", start, err)
	return page, err
}

func (s *instrumentedStore) Count(ctx context.Context, filter audit.QueryFilter) (int64, error) {
	start := time.Now()
	n, err := s.inner.Count(ctx, filter)
	s.observe("count", start, err)
	return n, err
}

func (s *instrumentedStore) GetStats(ctx context.Context, tr audit.TimeRange) (*audit.Stats, error) {
	start := time.Now()
	stats, err := s.inner.GetStats(ctx, tr)
	s.observe("stats", start, err)
	return stats, err
}

func (s *instrumentedStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	start := time.Now()
	n, err := s.inner.Purge(ctx, olderThan)
	s.observe("purge", start, err)
	return n, err
}

// HealthCheck is not timed; probes run frequently and carry no error.
func (s *instrumentedStore) HealthCheck(ctx context.Context) bool {
	return s.inner.HealthCheck(ctx)
}

func (s *instrumentedStore) Close() error {
	start := time.Now()
	err := s.inner.Close()
	s.observe("close", start, err)
	return err
}

func (s *instrumentedStore) Unwrap() audit.Store { return s.inner }
