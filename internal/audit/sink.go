// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/chronicle/internal/logging"
)

// ReportKind classifies a problem raised by the engine.
type ReportKind string

const (
	// ReportRejected means an event failed validation and was dropped.
	ReportRejected ReportKind = "rejected"

	// ReportRetry means a write attempt failed and will be retried.
	ReportRetry ReportKind = "retry"

	// ReportFlushFailed means every attempt failed and the batch was requeued.
	ReportFlushFailed ReportKind = "flush_failed"

	// ReportCloseFailed means the store did not close cleanly.
	ReportCloseFailed ReportKind = "close_failed"
)

// Report describes one problem. Events is the number of events affected and
// Attempt the write attempt that failed, when applicable.
type Report struct {
	Kind    ReportKind
	Message string
	Err     error
	Events  int
	Attempt int
}

// ErrorSink receives problems the engine cannot return to a caller.
// Implementations must be safe for concurrent use.
type ErrorSink interface {
	Report(r Report)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(Report)

// Report calls f(r).
func (f ErrorSinkFunc) Report(r Report) { f(r) }

// LogSink writes reports to zerolog. Retry and flush-failure reports for an
// unavailable store repeat on every cycle, so they pass through a token
// bucket; when reports are suppressed the next emitted line carries the count.
type LogSink struct {
	logger  zerolog.Logger
	limiter *rate.Limiter

	mu         sync.Mutex
	suppressed int
}

// NewLogSink creates a sink emitting at most burst throttled reports per
// interval. A non-positive interval disables throttling.
func NewLogSink(logger zerolog.Logger, interval time.Duration, burst int) *LogSink {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if burst < 1 {
		burst = 1
	}
	return &LogSink{
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// DefaultLogSink returns a sink on the global logger allowing a burst of five
// repeated warnings, then one every ten seconds.
func DefaultLogSink() *LogSink {
	return NewLogSink(logging.WithComponent("audit"), 10*time.Second, 5)
}

// Report implements ErrorSink.
func (s *LogSink) Report(r Report) {
	var suppressed int
	if r.Kind == ReportRetry || r.Kind == ReportFlushFailed {
		s.mu.Lock()
		if !s.limiter.Allow() {
			s.suppressed++
			s.mu.Unlock()
			return
		}
		suppressed = s.suppressed
		s.suppressed = 0
		s.mu.Unlock()
	}

	var ev *zerolog.Event
	switch r.Kind {
	case ReportFlushFailed, ReportCloseFailed:
		ev = s.logger.Error()
	default:
		ev = s.logger.Warn()
	}

	ev = ev.Err(r.Err).Str("kind", string(r.Kind))
	if r.Events > 0 {
		ev = ev.Int("events", r.Events)
	}
	if r.Attempt > 0 {
		ev = ev.Int("attempt", r.Attempt)
	}
	if suppressed > 0 {
		ev = ev.Int("suppressed", suppressed)
	}
	ev.Msg(r.Message)
}
