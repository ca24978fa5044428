// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/validation"
)

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	// Success indicates whether the request was successful
	Success bool `json:"success"`

	// Data contains the response payload (null on error)
	Data any `json:"data,omitempty"`

	// Error contains error details (null on success)
	Error *APIError `json:"error,omitempty"`

	// Meta contains metadata about the response
	Meta *APIMeta `json:"meta,omitempty"`
}

// APIError represents an error response.
type APIError struct {
	// Code is a machine-readable error code
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Details carries the underlying error text for client errors
	Details string `json:"details,omitempty"`

	// Fields lists each rejected field of a validation failure
	Fields []validation.FieldError `json:"fields,omitempty"`

	// RequestID is the request ID for tracing
	RequestID string `json:"request_id,omitempty"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	RequestID  string          `json:"request_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	DurationMs int64           `json:"duration_ms"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

// PaginationMeta describes one page of a list response.
type PaginationMeta struct {
	Total   int64 `json:"total"`
	Count   int   `json:"count"`
	Offset  int   `json:"offset"`
	Limit   int   `json:"limit"`
	HasMore bool  `json:"has_more"`
}

// Error codes for API responses
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
)

// respond writes data in a success envelope.
func respond(w http.ResponseWriter, r *http.Request, status int, data any, pagination *PaginationMeta) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    newMeta(r, pagination),
	})
}

// respondError writes an error envelope and logs server-side failures.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	requestID := logging.RequestIDFromContext(r.Context())

	apiErr := &APIError{Code: code, Message: message, RequestID: requestID}
	if err != nil {
		if status >= http.StatusInternalServerError {
			logging.Ctx(r.Context()).Error().Err(err).
				Str("path", r.URL.Path).
				Int("status", status).
				Msg(message)
		} else {
			apiErr.Details = err.Error()
			var verr *validation.Error
			if errors.As(err, &verr) {
				apiErr.Fields = verr.Fields
			}
		}
	}

	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   apiErr,
		Meta:    newMeta(r, nil),
	})
}

// respondStoreError maps a query failure onto a status code. Filter errors
// are the caller's fault; an open circuit or closed engine is temporary.
func respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, audit.ErrInvalidFilter):
		respondError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, "Invalid query parameters", err)
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, audit.ErrClosed):
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Audit store unavailable", err)
	default:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to query audit events", err)
	}
}

func newMeta(r *http.Request, pagination *PaginationMeta) *APIMeta {
	meta := &APIMeta{
		RequestID:  logging.RequestIDFromContext(r.Context()),
		Timestamp:  time.Now().UTC(),
		Pagination: pagination,
	}
	if start, ok := r.Context().Value(startTimeKey{}).(time.Time); ok {
		meta.DurationMs = time.Since(start).Milliseconds()
	}
	return meta
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
