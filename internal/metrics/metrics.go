// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Audit engine admission, queue and flush behavior
// - Storage backend latency and errors
// - Circuit breaker state for network backends
// - Retention purges
// - Read API latency and throughput

var (
	// Engine Metrics
	AuditEventsAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_events_admitted_total",
			Help: "Total number of audit events admitted to the queue",
		},
	)

	AuditEventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_events_rejected_total",
			Help: "Total number of audit events dropped at admission",
		},
		[]string{"reason"}, // "invalid", "filtered"
	)

	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chronicle_queue_depth",
			Help: "Number of audit events waiting to be flushed",
		},
	)

	AuditFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chronicle_flush_duration_seconds",
			Help:    "Duration of audit flushes including retries",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	AuditFlushAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_flush_attempts_total",
			Help: "Total number of batch write attempts",
		},
		[]string{"result"}, // "success", "failure"
	)

	AuditEventsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_events_persisted_total",
			Help: "Total number of audit events handed to the store successfully",
		},
	)

	AuditEventsRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_events_requeued_total",
			Help: "Total number of audit events returned to the queue after a failed flush",
		},
	)

	// Storage Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chronicle_store_operation_duration_seconds",
			Help:    "Duration of storage backend operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_store_errors_total",
			Help: "Total number of failed storage backend operations",
		},
		[]string{"store", "operation"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chronicle_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Retention Metrics
	RetentionPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chronicle_retention_purged_total",
			Help: "Total number of audit events removed by the retention routine",
		},
	)

	RetentionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_retention_runs_total",
			Help: "Total number of retention runs",
		},
		[]string{"result"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chronicle_http_requests_total",
			Help: "Total number of read API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chronicle_http_request_duration_seconds",
			Help:    "Duration of read API requests in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)

// RecordStoreOperation records a storage backend call.
func RecordStoreOperation(store, operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(store, operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(store, operation).Inc()
	}
}

// RecordAPIRequest records a read API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRetentionRun records one retention pass.
func RecordRetentionRun(purged int64, err error) {
	if err != nil {
		RetentionRuns.WithLabelValues("failure").Inc()
		return
	}
	RetentionRuns.WithLabelValues("success").Inc()
	RetentionPurged.Add(float64(purged))
}

// RecordCircuitBreakerTransition records a breaker moving between states.
// States are encoded 0=closed, 1=half-open, 2=open.
func RecordCircuitBreakerTransition(name, from, to string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}
