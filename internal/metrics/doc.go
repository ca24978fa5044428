// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered on the default registry through promauto and are
exposed at /metrics by the read API:

	curl http://localhost:8417/metrics

# Available Metrics

Engine Metrics:
  - chronicle_events_admitted_total: Events accepted into the queue (counter)
  - chronicle_events_rejected_total: Events dropped at admission (counter)
    Labels: reason ("invalid", "filtered")
  - chronicle_queue_depth: Events waiting to be flushed (gauge)
  - chronicle_flush_duration_seconds: Flush latency including retries (histogram)
  - chronicle_flush_attempts_total: Batch write attempts (counter)
    Labels: result ("success", "failure")
  - chronicle_events_persisted_total: Events written by successful flushes (counter)
  - chronicle_events_requeued_total: Events returned to the queue (counter)

A steadily growing chronicle_queue_depth together with a rising
chronicle_events_requeued_total means the store is unavailable: events are
retained in memory until it recovers or the process exits.

Storage Metrics:
  - chronicle_store_operation_duration_seconds (histogram)
    Labels: store, operation
  - chronicle_store_errors_total (counter)
    Labels: store, operation

Circuit Breaker Metrics:
  - chronicle_circuit_breaker_state: 0=closed, 1=half-open, 2=open (gauge)
  - chronicle_circuit_breaker_transitions_total (counter)
    Labels: name, from, to

Retention and API Metrics:
  - chronicle_retention_purged_total, chronicle_retention_runs_total
  - chronicle_http_requests_total, chronicle_http_request_duration_seconds
    Labels: method, route (and status for the counter)

# Example Queries

Flush failure ratio over five minutes:

	sum(rate(chronicle_flush_attempts_total{result="failure"}[5m]))
	  / sum(rate(chronicle_flush_attempts_total[5m]))

p99 batch write latency per backend:

	histogram_quantile(0.99,
	  sum by (store, le) (rate(chronicle_store_operation_duration_seconds_bucket{operation="write_batch"}[5m])))
*/
package metrics
