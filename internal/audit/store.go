// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	ids    map[string]struct{}
	maxLen int
	closed bool
}

// NewMemoryStore creates a new in-memory audit store holding at most maxLen
// events. When full, the oldest tenth is discarded.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]Event, 0, min(maxLen, 1024)),
		ids:    make(map[string]struct{}),
		maxLen: maxLen,
	}
}

// Write persists an audit event.
func (s *MemoryStore) Write(ctx context.Context, event *Event) error {
	return s.WriteBatch(ctx, []Event{*event})
}

// WriteBatch persists events. Events whose ID is already stored are skipped.
func (s *MemoryStore) WriteBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for i := range events {
		if _, dup := s.ids[events[i].ID]; dup {
			continue
		}
		if len(s.events) >= s.maxLen {
			s.evictOldest()
		}
		s.events = append(s.events, events[i])
		s.ids[events[i].ID] = struct{}{}
	}
	return nil
}

// evictOldest removes the oldest 10% of events. Caller holds mu.
func (s *MemoryStore) evictOldest() {
	removeCount := max(s.maxLen/10, 1)
	for _, e := range s.events[:removeCount] {
		delete(s.ids, e.ID)
	}
	s.events = append(s.events[:0], s.events[removeCount:]...)
}

// Query retrieves events matching the filter.
func (s *MemoryStore) Query(ctx context.Context, filter QueryFilter) (*Page, error) {
	f, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return SelectPage(s.events, f), nil
}

// Count returns the number of events matching the filter.
func (s *MemoryStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	f, err := filter.Normalize()
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	var count int64
	for i := range s.events {
		if f.Matches(&s.events[i]) {
			count++
		}
	}
	return count, nil
}

// GetStats returns statistics for the memory store.
func (s *MemoryStore) GetStats(ctx context.Context, tr TimeRange) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return AccumulateStats(s.events, tr), nil
}

// Purge removes events older than the given time.
func (s *MemoryStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	kept := s.events[:0]
	var deleted int64
	for idx := range s.events {
		if s.events[idx].Timestamp.Before(olderThan) {
			delete(s.ids, s.events[idx].ID)
			deleted++
			continue
		}
		kept = append(kept, s.events[idx])
	}
	s.events = kept
	return deleted, nil
}

// HealthCheck reports whether the store is open.
func (s *MemoryStore) HealthCheck(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// Close marks the store closed. Stored events remain readable through Len.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of events in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Events returns a copy of every stored event in insertion order.
func (s *MemoryStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
