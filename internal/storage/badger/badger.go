// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package badger stores audit events in an embedded BadgerDB key-value store.
//
// Events are kept under time-ordered keys so range scans and purges touch
// only the affected span:
//
//	e/<8-byte big-endian unix micros>/<id>  -> event JSON
//	i/<id>                                  -> event key
//
// There are no secondary indexes. Filters, ordering and free-text search are
// evaluated in process over the scanned time span, which keeps the store
// dependency-free and suits single-node deployments with modest volumes.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/logging"
)

// Key prefixes for BadgerDB storage
const (
	eventKeyPrefix = "e/"
	idKeyPrefix    = "i/"
)

// signBit flips the sign so negative timestamps sort before positive ones.
const signBit = 1 << 63

// tsLen is the width of the encoded timestamp inside an event key.
const tsLen = 8

// Options configures Open.
type Options struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Intended for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// Store implements audit.Store on BadgerDB.
type Store struct {
	db *badger.DB

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open opens (or creates) the database.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" && !opts.InMemory {
		return nil, fmt.Errorf("badger: path is required")
	}

	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.SyncWrites = opts.SyncWrites

	// Reduce logging verbosity
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Bool("sync_writes", opts.SyncWrites).
		Msg("Badger audit store opened")
	return &Store{db: db}, nil
}

func encodeMicros(us int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(us)^signBit)
}

func eventKey(ts time.Time, id string) []byte {
	k := make([]byte, 0, len(eventKeyPrefix)+tsLen+1+len(id))
	k = append(k, eventKeyPrefix...)
	k = append(k, encodeMicros(ts.UTC().UnixMicro())...)
	k = append(k, '/')
	return append(k, id...)
}

func idKey(id string) []byte {
	return []byte(idKeyPrefix + id)
}

// keyMicros extracts the timestamp from an event key.
func keyMicros(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(eventKeyPrefix):len(eventKeyPrefix)+tsLen]) ^ signBit)
}

// keyID extracts the event id from an event key.
func keyID(key []byte) string {
	return string(key[len(eventKeyPrefix)+tsLen+1:])
}

// Write persists a single event.
func (s *Store) Write(ctx context.Context, event *audit.Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	return s.WriteBatch(ctx, []audit.Event{*event})
}

// WriteBatch stores events in one transaction, skipping ids already present.
// A batch larger than one transaction allows is split; every part is
// idempotent, so a failure after a partial commit is repaired by the
// redelivery that follows.
func (s *Store) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	if s.closed.Load() {
		return audit.ErrClosed
	}

	txn := s.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for i := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.put(txn, &events[i])
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return fmt.Errorf("commit partial batch: %w", err)
			}
			txn = s.db.NewTransaction(true)
			err = s.put(txn, &events[i])
		}
		if err != nil {
			return err
		}
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit batch of %d events: %w", len(events), err)
	}
	return nil
}

func (s *Store) put(txn *badger.Txn, e *audit.Event) error {
	ik := idKey(e.ID)
	if _, err := txn.Get(ik); err == nil {
		return nil
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("lookup event %s: %w", e.ID, err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}

	ek := eventKey(e.Timestamp, e.ID)
	if err := txn.Set(ek, data); err != nil {
		return err
	}
	return txn.Set(ik, ek)
}

// scan calls fn for every event with a timestamp inside [start, end).
func (s *Store) scan(ctx context.Context, start, end *time.Time, fn func(*audit.Event)) error {
	prefix := []byte(eventKeyPrefix)
	seek := prefix
	if start != nil {
		seek = append(append([]byte{}, prefix...), encodeMicros(audit.CeilMicro(*start).UnixMicro())...)
	}
	var endUS int64
	if end != nil {
		endUS = audit.CeilMicro(*end).UnixMicro()
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if end != nil && keyMicros(item.Key()) >= endUS {
				return nil
			}

			var e audit.Event
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode event %s: %w", keyID(item.Key()), err)
			}
			fn(&e)
		}
		return nil
	})
}

// Query retrieves one page of events matching the filter.
func (s *Store) Query(ctx context.Context, filter audit.QueryFilter) (*audit.Page, error) {
	if s.closed.Load() {
		return nil, audit.ErrClosed
	}
	f, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	var matched []audit.Event
	err = s.scan(ctx, f.StartTime, f.EndTime, func(e *audit.Event) {
		if f.Matches(e) {
			matched = append(matched, *e)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("badger: query events: %w", err)
	}
	return audit.SelectPage(matched, f), nil
}

// Count returns the number of events matching the filter.
func (s *Store) Count(ctx context.Context, filter audit.QueryFilter) (int64, error) {
	if s.closed.Load() {
		return 0, audit.ErrClosed
	}
	f, err := filter.Normalize()
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.scan(ctx, f.StartTime, f.EndTime, func(e *audit.Event) {
		if f.Matches(e) {
			n++
		}
	})
	if err != nil {
		return 0, fmt.Errorf("badger: count events: %w", err)
	}
	return n, nil
}

// GetStats aggregates events inside the time range.
func (s *Store) GetStats(ctx context.Context, tr audit.TimeRange) (*audit.Stats, error) {
	if s.closed.Load() {
		return nil, audit.ErrClosed
	}

	var events []audit.Event
	if err := s.scan(ctx, tr.Start, tr.End, func(e *audit.Event) {
		events = append(events, *e)
	}); err != nil {
		return nil, fmt.Errorf("badger: stats: %w", err)
	}
	return audit.AccumulateStats(events, tr), nil
}

// Purge removes events older than the given time. Only keys are read; the
// deletes go through a write batch.
func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	if s.closed.Load() {
		return 0, audit.ErrClosed
	}

	cutoff := audit.CeilMicro(olderThan).UnixMicro()
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(eventKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if keyMicros(key) >= cutoff {
				break
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger: scan for purge: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("badger: delete event: %w", err)
		}
		if err := wb.Delete(idKey(keyID(key))); err != nil {
			return 0, fmt.Errorf("badger: delete id: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("badger: flush purge: %w", err)
	}

	deleted := int64(len(keys))
	logging.Info().Int64("deleted", deleted).Time("older_than", olderThan).Msg("Deleted old audit events")
	return deleted, nil
}

// Optimize reclaims value log space left by purged events.
func (s *Store) Optimize(ctx context.Context) error {
	if s.closed.Load() {
		return audit.ErrClosed
	}
	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("badger: value log gc: %w", err)
		}
	}
	return ctx.Err()
}

// HealthCheck reports whether the database is open.
func (s *Store) HealthCheck(ctx context.Context) bool {
	return !s.closed.Load() && !s.db.IsClosed()
}

// Close closes the database. Later calls return the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
