// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/cache"
	"github.com/tomtom215/chronicle/internal/logging"
)

// statsCacheEntries bounds the number of distinct cached stats ranges.
const statsCacheEntries = 256

// EventReader is the read side of the audit engine. *audit.Logger
// implements it.
type EventReader interface {
	Query(ctx context.Context, filter audit.QueryFilter) (*audit.Page, error)
	Count(ctx context.Context, filter audit.QueryFilter) (int64, error)
	GetStats(ctx context.Context, start, end *time.Time) (*audit.Stats, error)
	HealthCheck(ctx context.Context) bool
}

// Handler serves the read API.
type Handler struct {
	reader      EventReader
	maxPageSize int
	exporters   map[string]audit.Exporter
	statsCache  *cache.Cache[*audit.Stats]
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithStatsCacheTTL caches stats responses per time range for ttl. A
// non-positive ttl leaves caching off.
func WithStatsCacheTTL(ttl time.Duration) HandlerOption {
	return func(h *Handler) {
		if ttl > 0 {
			h.statsCache = cache.New[*audit.Stats](ttl, statsCacheEntries)
		}
	}
}

// NewHandler creates a handler over reader. maxPageSize caps the limit
// parameter; zero selects audit.MaxQueryLimit.
func NewHandler(reader EventReader, maxPageSize int, opts ...HandlerOption) *Handler {
	if maxPageSize <= 0 || maxPageSize > audit.MaxQueryLimit {
		maxPageSize = audit.MaxQueryLimit
	}
	h := &Handler{
		reader:      reader,
		maxPageSize: maxPageSize,
		exporters: map[string]audit.Exporter{
			"json": &audit.JSONExporter{},
			"cef":  audit.NewCEFExporter(),
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ListEvents handles GET /api/v1/audit/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query(), h.maxPageSize)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters", err)
		return
	}

	page, err := h.reader.Query(r.Context(), filter)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, page.Items, &PaginationMeta{
		Total:   page.Total,
		Count:   len(page.Items),
		Offset:  page.Offset,
		Limit:   page.Limit,
		HasMore: page.HasMore,
	})
}

// GetEvent handles GET /api/v1/audit/events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required", nil)
		return
	}

	page, err := h.reader.Query(r.Context(), audit.QueryFilter{EventID: id, Limit: 1})
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if len(page.Items) == 0 {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Audit event not found", nil)
		return
	}

	respond(w, r, http.StatusOK, page.Items[0], nil)
}

// CountEvents handles GET /api/v1/audit/count.
func (h *Handler) CountEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query(), h.maxPageSize)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters", err)
		return
	}

	n, err := h.reader.Count(r.Context(), filter)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, map[string]int64{"count": n}, nil)
}

// Stats handles GET /api/v1/audit/stats?start=&end=.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseTime(q, "start")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid start time", err)
		return
	}
	end, err := parseTime(q, "end")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid end time", err)
		return
	}
	if start != nil && end != nil && !start.Before(*end) {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Start must be before end", nil)
		return
	}

	var key string
	if h.statsCache != nil {
		key = cache.GenerateKey("stats", audit.TimeRange{Start: start, End: end})
		if stats, ok := h.statsCache.Get(key); ok {
			respond(w, r, http.StatusOK, stats, nil)
			return
		}
	}

	stats, err := h.reader.GetStats(r.Context(), start, end)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}
	if h.statsCache != nil {
		h.statsCache.Set(key, stats)
	}

	respond(w, r, http.StatusOK, stats, nil)
}

// Export handles GET /api/v1/audit/export?format=json|cef. It accepts the
// same filter parameters as ListEvents and returns one page of events as a
// downloadable file. Without a limit it exports a full page.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	exporter, ok := h.exporters[format]
	if !ok {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest,
			"Unsupported export format", fmt.Errorf("format %q: want json or cef", format))
		return
	}

	filter, err := parseFilter(r.URL.Query(), h.maxPageSize)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters", err)
		return
	}
	if filter.Limit == 0 {
		filter.Limit = h.maxPageSize
	}

	page, err := h.reader.Query(r.Context(), filter)
	if err != nil {
		respondStoreError(w, r, err)
		return
	}

	data, err := exporter.Export(page.Items)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to export audit events", err)
		return
	}

	filename := fmt.Sprintf("audit-export-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("X-Total-Count", strconv.FormatInt(page.Total, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to write export")
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if !h.reader.HealthCheck(ctx) {
		writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    map[string]string{"status": "unhealthy"},
			Error:   &APIError{Code: ErrCodeServiceUnavailable, Message: "Audit store is not healthy"},
			Meta:    newMeta(r, nil),
		})
		return
	}
	respond(w, r, http.StatusOK, map[string]string{"status": "healthy"}, nil)
}
