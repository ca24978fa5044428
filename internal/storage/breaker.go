// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package storage

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/metrics"
)

// breakerStore fails fast while the backend is known to be down.
type breakerStore struct {
	inner audit.Store
	cb    *gobreaker.CircuitBreaker[any]
}

// WithCircuitBreaker guards every store call with a circuit breaker named
// after the backend. Rejected filters and cancelled contexts are caller
// errors and do not count as backend failures.
func WithCircuitBreaker(store audit.Store, name string, cfg CircuitBreakerConfig) audit.Store {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultConfig().CircuitBreaker.MaxFailures
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, audit.ErrInvalidFilter) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String(), int(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Storage circuit breaker changed state")
		},
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	return &breakerStore{
		inner: store,
		cb:    gobreaker.NewCircuitBreaker[any](settings),
	}
}

func guarded[T any](b *breakerStore, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) {
		res, err := fn()
		return res, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (b *breakerStore) Write(ctx context.Context, event *audit.Event) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.Write(ctx, event)
	})
	return err
}

func (b *breakerStore) WriteBatch(ctx context.Context, events []audit.Event) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.WriteBatch(ctx, events)
	})
	return err
}

func (b *breakerStore) Query(ctx context.Context, filter audit.QueryFilter) (*audit.Page, error) {
	return guarded(b, func() (*audit.Page, error) { return b.inner.Query(ctx, filter) })
}

func (b *breakerStore) Count(ctx context.Context, filter audit.QueryFilter) (int64, error) {
	return guarded(b, func() (int64, error) { return b.inner.Count(ctx, filter) })
}

func (b *breakerStore) GetStats(ctx context.Context, tr audit.TimeRange) (*audit.Stats, error) {
	return guarded(b, func() (*audit.Stats, error) { return b.inner.GetStats(ctx, tr) })
}

func (b *breakerStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	return guarded(b, func() (int64, error) { return b.inner.Purge(ctx, olderThan) })
}

// HealthCheck reports false while the breaker is open without touching the
// backend.
func (b *breakerStore) HealthCheck(ctx context.Context) bool {
	if b.cb.State() == gobreaker.StateOpen {
		return false
	}
	return b.inner.HealthCheck(ctx)
}

func (b *breakerStore) Close() error { return b.inner.Close() }

func (b *breakerStore) Unwrap() audit.Store { return b.inner }

// State returns the breaker state, e.g. "closed" or "open".
func (b *breakerStore) State() string { return b.cb.State().String() }
