// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package audit implements the audit event engine.
//
// Call sites hand partial events to a Logger. The Logger validates them,
// resolves their level, applies include and exclude filters, redacts
// sensitive payload fields, and queues them. The queue is flushed to a Store
// in batches.
//
// # Admission
//
// Log never returns an error and never blocks on storage (unless BatchSize
// is 1). The steps, in order:
//
//  1. Drop silently if the engine is disabled or shutting down.
//  2. Validate; malformed events are dropped and reported to the ErrorSink.
//  3. Resolve the level when unset (first match wins):
//     failed login, login_failed, permission_denied, access_denied: critical
//     delete, account_locked, password_change, permission_granted: high
//     create, update, config_change, system_start, system_stop: medium
//     everything else: low
//  4. Apply the minimum level, exclude rules, then include rules.
//  5. Redact OldValues, NewValues and Context.Custom.
//  6. Merge default metadata under the caller's metadata.
//  7. Stamp ID (UUIDv4) and Timestamp (UTC, microsecond precision).
//
// # Delivery
//
// Flush swaps the queue for an empty one and writes the batch through
// Store.WriteBatch, retrying with exponential backoff. When every attempt
// fails the batch returns to the front of the queue, so delivery is
// at-least-once. Stores skip IDs they already hold, which keeps redelivery
// harmless.
//
//	Log() -> queue --(BatchSize reached | timer)--> Flush() -> Store.WriteBatch()
//	                                                  |
//	                                        failure: backoff, retry, requeue
//
// Only one flush runs at a time. Timer flushes, size-triggered flushes and
// explicit Flush calls all take the same lock.
//
// # Lifecycle
//
// A Logger is active from NewLogger until Shutdown. Shutdown moves it to
// draining (admissions stop, the timer is stopped, a final flush runs) and
// then closed (the Store is closed). Shutdown is idempotent. Registering it
// on process signals is the caller's job.
//
// # Reading
//
// Query, Count, GetStats, Purge and HealthCheck pass straight through to the
// Store. Stores validate filters with QueryFilter.Normalize.
//
// Storage backends live under internal/storage. MemoryStore in this package
// is the in-process implementation used by tests and the "memory" kind.
package audit
