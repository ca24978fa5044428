// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

import "errors"

var (
	// ErrInvalidEvent is reported when an event fails validation at admission.
	ErrInvalidEvent = errors.New("audit: invalid event")

	// ErrInvalidFilter is returned by read operations given a malformed filter.
	ErrInvalidFilter = errors.New("audit: invalid query filter")

	// ErrInvalidConfig is returned by NewLogger for an unusable configuration.
	ErrInvalidConfig = errors.New("audit: invalid configuration")

	// ErrNilStore is returned by NewLogger when no store is supplied.
	ErrNilStore = errors.New("audit: store is nil")

	// ErrClosed is returned by operations on a store that has been closed.
	ErrClosed = errors.New("audit: store closed")
)
