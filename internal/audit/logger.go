// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/metrics"
	"github.com/tomtom215/chronicle/internal/validation"
)

// maxBackoffShift caps the exponential backoff at RetryDelay * 2^10.
const maxBackoffShift = 10

// State is the engine lifecycle stage. Transitions only move forward.
type State int32

const (
	StateActive State = iota
	StateDraining
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Option configures a Logger.
type Option func(*Logger)

// WithErrorSink routes rejections and flush failures to sink.
func WithErrorSink(sink ErrorSink) Option {
	return func(l *Logger) {
		if sink != nil {
			l.sink = sink
		}
	}
}

// WithClock replaces the wall clock used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator replaces the event ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(l *Logger) {
		if gen != nil {
			l.newID = gen
		}
	}
}

// Logger is the audit engine. It admits events into an in-memory queue and
// flushes them to a Store in batches, either when the queue reaches
// BatchSize or when the flush timer fires.
//
// A Logger owns its Store: Shutdown closes it. Construct one per process and
// pass it to call sites.
type Logger struct {
	cfg       Config
	store     Store
	sink      ErrorSink
	sanitizer *Sanitizer
	rules     admission
	now       func() time.Time
	newID     func() string

	// queueMu guards queue and the transition out of StateActive.
	queueMu sync.Mutex
	queue   []Event

	// flushMu serializes Flush so one batch is in flight at a time.
	flushMu sync.Mutex

	state  atomic.Int32
	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewLogger creates an engine and starts its flush timer.
func NewLogger(cfg Config, store Store, opts ...Option) (*Logger, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Logger{
		cfg:    cfg,
		store:  store,
		sink:   DefaultLogSink(),
		rules:  newAdmission(cfg),
		now:    time.Now,
		newID:  uuid.NewString,
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if cfg.Sanitize.Enabled {
		l.sanitizer = NewSanitizer(cfg.Sanitize.Fields, cfg.Sanitize.Replacement)
	} else {
		l.sanitizer = copier
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.run()

	logging.Info().
		Bool("enabled", cfg.Enabled).
		Int("batch_size", cfg.BatchSize).
		Dur("flush_interval", cfg.FlushInterval).
		Int("max_retries", cfg.MaxRetries).
		Str("min_level", string(l.rules.minLevel)).
		Msg("Audit logger started")

	return l, nil
}

// copier deep-copies payloads without redacting anything.
var copier = &Sanitizer{}

// State returns the current lifecycle stage.
func (l *Logger) State() State {
	return State(l.state.Load())
}

// QueueDepth returns the number of events waiting to be flushed.
func (l *Logger) QueueDepth() int {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	return len(l.queue)
}

// Log admits an event. It never returns an error: malformed events are
// dropped and reported to the error sink, filtered events are dropped
// silently, and a disabled or shutting-down engine ignores the call.
func (l *Logger) Log(event Event) {
	if !l.cfg.Enabled || l.State() != StateActive {
		return
	}

	admitted, ok := l.admit(event)
	if !ok {
		return
	}

	l.queueMu.Lock()
	if l.State() != StateActive {
		l.queueMu.Unlock()
		return
	}
	l.queue = append(l.queue, admitted)
	depth := len(l.queue)
	l.queueMu.Unlock()

	metrics.AuditEventsAdmitted.Inc()
	metrics.AuditQueueDepth.Set(float64(depth))

	if depth >= l.cfg.BatchSize {
		if l.cfg.BatchSize == 1 {
			_ = l.Flush()
			return
		}
		l.requestFlush()
	}
}

// LogBatch admits each event in order. There is no atomicity across the
// batch: each event is admitted or dropped on its own.
func (l *Logger) LogBatch(events []Event) {
	for i := range events {
		l.Log(events[i])
	}
}

// admit runs validation, level resolution, filtering, sanitization and
// stamping. It works on a copy; the caller's maps are never touched.
func (l *Logger) admit(e Event) (Event, bool) {
	if e.ActorType == "" {
		if e.ActorID == "" {
			e.ActorType = ActorAnonymous
		} else {
			e.ActorType = ActorUser
		}
	}
	if e.Context.IsZero() {
		e.Context = nil
	}

	if verr := validation.ValidateStruct(&e); verr != nil {
		metrics.AuditEventsRejected.WithLabelValues("invalid").Inc()
		l.sink.Report(Report{
			Kind:    ReportRejected,
			Message: "audit event rejected",
			Err:     fmt.Errorf("%w: %w", ErrInvalidEvent, verr),
			Events:  1,
		})
		return Event{}, false
	}

	if e.Level == "" {
		e.Level = ResolveLevel(e.Action, e.Success)
	}

	if !l.rules.shouldLog(&e) {
		metrics.AuditEventsRejected.WithLabelValues("filtered").Inc()
		return Event{}, false
	}

	e.OldValues = l.sanitizer.Sanitize(e.OldValues)
	e.NewValues = l.sanitizer.Sanitize(e.NewValues)
	if e.Context != nil {
		rc := *e.Context
		rc.Custom = l.sanitizer.Sanitize(rc.Custom)
		e.Context = &rc
	}
	e.Metadata = mergeMetadata(l.cfg.Metadata, e.Metadata)

	e.ID = l.newID()
	e.Timestamp = l.now().UTC().Truncate(time.Microsecond)
	return e, true
}

// mergeMetadata layers caller metadata over the defaults. Caller keys win.
func mergeMetadata(defaults map[string]any, caller Payload) Payload {
	if len(defaults) == 0 && len(caller) == 0 {
		return nil
	}
	merged := make(Payload, len(defaults)+len(caller))
	for k, v := range defaults {
		merged[k] = copier.SanitizeValue(v)
	}
	for k, v := range caller {
		merged[k] = copier.SanitizeValue(v)
	}
	return merged
}

// requestFlush wakes the flusher without blocking. A pending wake-up already
// covers this request.
func (l *Logger) requestFlush() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// run owns the flush timer. Timer firings and size-threshold signals both go
// through Flush, so automatic and manual flushes share one serialized path.
func (l *Logger) run() {
	defer close(l.done)

	timer := time.NewTimer(l.cfg.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-l.signal:
			_ = l.Flush()
		case <-timer.C:
			_ = l.Flush()
			select {
			case <-l.stop:
				return
			default:
			}
			timer.Reset(l.cfg.FlushInterval)
		}
	}
}

// Flush hands the queued events to the store. Concurrent callers wait for
// the in-flight flush and then flush whatever has queued since.
//
// The write is attempted up to MaxRetries times with exponential backoff. If
// every attempt fails, the batch goes back to the front of the queue in its
// original order and the failure is reported to the error sink as well as
// returned.
func (l *Logger) Flush() error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	if l.State() == StateClosed {
		return ErrClosed
	}

	l.queueMu.Lock()
	batch := l.queue
	l.queue = nil
	l.queueMu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err := l.writeWithRetry(batch)
	metrics.AuditFlushDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		depth := l.requeue(batch)
		metrics.AuditEventsRequeued.Add(float64(len(batch)))
		metrics.AuditQueueDepth.Set(float64(depth))
		l.sink.Report(Report{
			Kind:    ReportFlushFailed,
			Message: "audit flush failed, batch requeued",
			Err:     err,
			Events:  len(batch),
			Attempt: l.attempts(),
		})
		return fmt.Errorf("audit: flush of %d events failed: %w", len(batch), err)
	}

	metrics.AuditEventsPersisted.Add(float64(len(batch)))
	metrics.AuditQueueDepth.Set(float64(l.QueueDepth()))
	return nil
}

func (l *Logger) attempts() int {
	return max(l.cfg.MaxRetries, 1)
}

// writeWithRetry writes the batch, backing off RetryDelay * 2^(n-1) after
// the n-th failed attempt.
func (l *Logger) writeWithRetry(batch []Event) error {
	attempts := l.attempts()

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = l.writeOnce(batch)
		if err == nil {
			metrics.AuditFlushAttempts.WithLabelValues("success").Inc()
			return nil
		}
		metrics.AuditFlushAttempts.WithLabelValues("failure").Inc()

		if attempt == attempts {
			break
		}

		l.sink.Report(Report{
			Kind:    ReportRetry,
			Message: "audit batch write failed, retrying",
			Err:     err,
			Events:  len(batch),
			Attempt: attempt,
		})
		time.Sleep(l.backoff(attempt))
	}
	return err
}

func (l *Logger) writeOnce(batch []Event) error {
	ctx := context.Background()
	if l.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.WriteTimeout)
		defer cancel()
	}
	return l.store.WriteBatch(ctx, batch)
}

func (l *Logger) backoff(attempt int) time.Duration {
	shift := min(attempt-1, maxBackoffShift)
	return l.cfg.RetryDelay << shift
}

// requeue puts a failed batch back ahead of anything queued since the swap.
func (l *Logger) requeue(batch []Event) int {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()

	merged := make([]Event, 0, len(batch)+len(l.queue))
	merged = append(merged, batch...)
	merged = append(merged, l.queue...)
	l.queue = merged
	return len(merged)
}

// Shutdown stops admissions, stops the flush timer, flushes what is queued
// and closes the store. It is safe to call more than once; later calls wait
// for the first to finish and return its result.
//
// Events still queued after a failed final flush are lost.
func (l *Logger) Shutdown() error {
	l.shutdownOnce.Do(func() {
		l.queueMu.Lock()
		l.state.Store(int32(StateDraining))
		l.queueMu.Unlock()

		close(l.stop)
		<-l.done

		var errs []error
		if err := l.Flush(); err != nil {
			errs = append(errs, err)
		}

		l.flushMu.Lock()
		if err := l.store.Close(); err != nil {
			l.sink.Report(Report{
				Kind:    ReportCloseFailed,
				Message: "audit store close failed",
				Err:     err,
			})
			errs = append(errs, fmt.Errorf("audit: close store: %w", err))
		}
		l.state.Store(int32(StateClosed))
		l.flushMu.Unlock()

		if depth := l.QueueDepth(); depth > 0 {
			logging.Warn().Int("events", depth).Msg("Audit logger closed with unflushed events")
		} else {
			logging.Info().Msg("Audit logger stopped")
		}
		l.shutdownErr = errors.Join(errs...)
	})
	return l.shutdownErr
}

// Query returns one page of stored events.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) (*Page, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of stored events matching filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// GetStats aggregates stored events between start (inclusive) and end
// (exclusive). Either bound may be nil.
func (l *Logger) GetStats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	return l.store.GetStats(ctx, TimeRange{Start: start, End: end})
}

// Purge deletes stored events older than the cutoff.
func (l *Logger) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	return l.store.Purge(ctx, olderThan)
}

// HealthCheck probes the store.
func (l *Logger) HealthCheck(ctx context.Context) bool {
	return l.store.HealthCheck(ctx)
}
