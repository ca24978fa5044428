// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/storage/storetest"
)

// envelope mirrors APIResponse with a raw payload.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

// fakeReader returns canned results.
type fakeReader struct {
	err        error
	healthy    bool
	filter     audit.QueryFilter
	start      *time.Time
	end        *time.Time
	statsCalls int
}

func (f *fakeReader) Query(_ context.Context, filter audit.QueryFilter) (*audit.Page, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return &audit.Page{Items: []audit.Event{}, Limit: filter.Limit}, nil
}

func (f *fakeReader) Count(_ context.Context, filter audit.QueryFilter) (int64, error) {
	f.filter = filter
	return 0, f.err
}

func (f *fakeReader) GetStats(_ context.Context, start, end *time.Time) (*audit.Stats, error) {
	f.start, f.end = start, end
	f.statsCalls++
	if f.err != nil {
		return nil, f.err
	}
	return audit.NewStats(audit.TimeRange{Start: start, End: end}), nil
}

func (f *fakeReader) HealthCheck(context.Context) bool { return f.healthy }

// newSeededRouter serves the fixture events from a memory store through a
// real engine.
func newSeededRouter(t *testing.T, maxPageSize int) http.Handler {
	t.Helper()
	store := audit.NewMemoryStore(0)
	if err := store.WriteBatch(context.Background(), storetest.Fixtures()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	logger, err := audit.NewLogger(audit.DefaultConfig(), store)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Shutdown() })

	return NewRouter(NewHandler(logger, maxPageSize), NewMiddleware(MiddlewareConfig{}))
}

func newFakeRouter(reader EventReader) http.Handler {
	return NewRouter(NewHandler(reader, 100), NewMiddleware(MiddlewareConfig{}))
}

func do(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s: %v\n%s", target, err, rec.Body.String())
		}
	}
	return rec, env
}

func TestListEvents(t *testing.T) {
	h := newSeededRouter(t, 100)

	rec, env := do(t, h, "/api/v1/audit/events?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !env.Success || env.Meta == nil || env.Meta.Pagination == nil {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	var events []audit.Event
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 2 || events[0].ID != "ev-5" || events[1].ID != "ev-4" {
		t.Errorf("events = %v, want newest first [ev-5 ev-4]", ids(events))
	}

	p := env.Meta.Pagination
	if p.Total != 5 || p.Count != 2 || p.Limit != 2 || !p.HasMore {
		t.Errorf("pagination = %+v", p)
	}
	if env.Meta.RequestID == "" || rec.Header().Get(RequestIDHeader) != env.Meta.RequestID {
		t.Errorf("request id header %q, meta %q", rec.Header().Get(RequestIDHeader), env.Meta.RequestID)
	}
}

func TestListEvents_Filters(t *testing.T) {
	h := newSeededRouter(t, 100)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"actor", "actor_id=bob", []string{"ev-4", "ev-3"}},
		{"failures", "success=false", []string{"ev-4"}},
		{"level", "level=critical", []string{"ev-4"}},
		{"resource ascending", "resource=document&order_dir=asc", []string{"ev-2", "ev-3"}},
		{"search", "search=quota", []string{"ev-3", "ev-2"}},
		{"time window", "start_time=2026-04-01T10:01:00Z&end_time=2026-04-01T10:03:00Z", []string{"ev-3", "ev-2"}},
		{"offset", "offset=4", []string{"ev-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, h, "/api/v1/audit/events?"+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			var events []audit.Event
			if err := json.Unmarshal(env.Data, &events); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := ids(events); strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListEvents_BadRequests(t *testing.T) {
	h := newSeededRouter(t, 100)

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"bad bool", "success=maybe", ErrCodeBadRequest},
		{"bad time", "start_time=yesterday", ErrCodeBadRequest},
		{"negative offset", "offset=-1", ErrCodeBadRequest},
		{"bad limit", "limit=ten", ErrCodeBadRequest},
		{"bad level", "level=severe", ErrCodeValidationFailed},
		{"bad order", "order_by=description", ErrCodeValidationFailed},
		{"inverted window", "start_time=2026-04-02T00:00:00Z&end_time=2026-04-01T00:00:00Z", ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, h, "/api/v1/audit/events?"+tt.query)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if env.Success || env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
			if env.Error != nil && env.Error.Details == "" {
				t.Error("client errors should carry details")
			}
		})
	}
}

func TestListEvents_FieldErrors(t *testing.T) {
	h := newSeededRouter(t, 100)

	rec, env := do(t, h, "/api/v1/audit/events?level=severe&order_dir=sideways")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Error == nil || len(env.Error.Fields) != 2 {
		t.Fatalf("fields = %+v, want level and order_dir", env.Error)
	}
	if f := env.Error.Fields[0]; f.Field != "level" || f.Tag != "oneof" {
		t.Errorf("first field = %+v", f)
	}
	if f := env.Error.Fields[1]; f.Field != "order_dir" || f.Param != "asc desc" {
		t.Errorf("second field = %+v", f)
	}
}

func TestListEvents_LimitCapped(t *testing.T) {
	reader := &fakeReader{}
	h := NewRouter(NewHandler(reader, 3), NewMiddleware(MiddlewareConfig{}))

	rec, _ := do(t, h, "/api/v1/audit/events?limit=500")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if reader.filter.Limit != 3 {
		t.Errorf("limit = %d, want capped to 3", reader.filter.Limit)
	}
}

func TestGetEvent(t *testing.T) {
	h := newSeededRouter(t, 100)

	rec, env := do(t, h, "/api/v1/audit/events/ev-2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var event audit.Event
	if err := json.Unmarshal(env.Data, &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.ID != "ev-2" || event.Context == nil || event.Context.IPAddress != "10.1.2.3" {
		t.Errorf("event = %+v", event)
	}

	rec, env = do(t, h, "/api/v1/audit/events/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestCountEvents(t *testing.T) {
	h := newSeededRouter(t, 100)

	rec, env := do(t, h, "/api/v1/audit/count?resource=session")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]int64
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["count"] != 2 {
		t.Errorf("count = %d, want 2", body["count"])
	}
}

func TestStats(t *testing.T) {
	h := newSeededRouter(t, 100)

	rec, env := do(t, h, "/api/v1/audit/stats?start=2026-04-01T10:00:00Z&end=2026-04-01T10:04:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var stats audit.Stats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalEvents != 4 {
		t.Errorf("total = %d, want 4", stats.TotalEvents)
	}
	if stats.EventsByResource["document"] != 2 {
		t.Errorf("by resource = %v", stats.EventsByResource)
	}
	if stats.SuccessRate != 75 {
		t.Errorf("success rate = %v, want 75", stats.SuccessRate)
	}
}

func TestStats_BadRange(t *testing.T) {
	reader := &fakeReader{}
	h := newFakeRouter(reader)

	for _, query := range []string{
		"start=nope",
		"end=nope",
		"start=2026-04-02T00:00:00Z&end=2026-04-01T00:00:00Z",
	} {
		rec, _ := do(t, h, "/api/v1/audit/stats?"+query)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", query, rec.Code)
		}
	}

	rec, _ := do(t, h, "/api/v1/audit/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("open range status = %d", rec.Code)
	}
	if reader.start != nil || reader.end != nil {
		t.Error("open range should pass nil bounds")
	}
}

func TestStats_Cached(t *testing.T) {
	reader := &fakeReader{}
	h := NewRouter(NewHandler(reader, 10, WithStatsCacheTTL(time.Minute)), NewMiddleware(MiddlewareConfig{}))

	for range 3 {
		if rec, _ := do(t, h, "/api/v1/audit/stats?start=2026-04-01T00:00:00Z"); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if reader.statsCalls != 1 {
		t.Errorf("GetStats calls = %d, want 1", reader.statsCalls)
	}

	// A different range is a different entry.
	do(t, h, "/api/v1/audit/stats?start=2026-04-02T00:00:00Z")
	if reader.statsCalls != 2 {
		t.Errorf("GetStats calls = %d, want 2", reader.statsCalls)
	}

	// Without the option every request reaches the store.
	uncached := &fakeReader{}
	h = newFakeRouter(uncached)
	do(t, h, "/api/v1/audit/stats")
	do(t, h, "/api/v1/audit/stats")
	if uncached.statsCalls != 2 {
		t.Errorf("uncached GetStats calls = %d, want 2", uncached.statsCalls)
	}
}

func TestExport(t *testing.T) {
	h := newSeededRouter(t, 100)

	t.Run("json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audit/export?actor_id=alice", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Header().Get("Content-Disposition"), ".json") {
			t.Errorf("disposition = %q", rec.Header().Get("Content-Disposition"))
		}
		var events []audit.Event
		if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(events) != 2 {
			t.Errorf("exported %d events, want 2", len(events))
		}
		if rec.Header().Get("X-Total-Count") != "2" {
			t.Errorf("X-Total-Count = %q", rec.Header().Get("X-Total-Count"))
		}
	})

	t.Run("cef", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audit/export?format=cef", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		if len(lines) != 5 {
			t.Fatalf("lines = %d, want 5", len(lines))
		}
		for _, line := range lines {
			if !strings.HasPrefix(line, "CEF:0|Chronicle|AuditEngine|") {
				t.Errorf("line %q is not CEF", line)
			}
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		rec, env := do(t, h, "/api/v1/audit/export?format=xml")
		if rec.Code != http.StatusBadRequest || env.Error == nil {
			t.Fatalf("status = %d, error %+v", rec.Code, env.Error)
		}
	})
}

func TestStoreErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid filter", audit.ErrInvalidFilter, http.StatusBadRequest, ErrCodeValidationFailed},
		{"breaker open", gobreaker.ErrOpenState, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"closed", audit.ErrClosed, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFakeRouter(&fakeReader{err: tt.err})
			rec, env := do(t, h, "/api/v1/audit/events")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want %s", env.Error, tt.code)
			}
			if tt.status == http.StatusInternalServerError && env.Error.Details != "" {
				t.Errorf("server errors must not leak details, got %q", env.Error.Details)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	rec, env := do(t, newFakeRouter(&fakeReader{healthy: true}), "/healthz")
	if rec.Code != http.StatusOK || !env.Success {
		t.Errorf("healthy: status = %d, success %v", rec.Code, env.Success)
	}

	rec, env = do(t, newFakeRouter(&fakeReader{healthy: false}), "/healthz")
	if rec.Code != http.StatusServiceUnavailable || env.Success {
		t.Errorf("unhealthy: status = %d, success %v", rec.Code, env.Success)
	}
}

func TestNotFoundRoute(t *testing.T) {
	rec, env := do(t, newFakeRouter(&fakeReader{}), "/api/v1/nope")
	if rec.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("status = %d, error %+v", rec.Code, env.Error)
	}
}

func TestWritesAreNotRouted(t *testing.T) {
	h := newFakeRouter(&fakeReader{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/audit/events", strings.NewReader("{}")))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func ids(events []audit.Event) []string {
	out := make([]string, len(events))
	for i := range events {
		out[i] = events[i].ID
	}
	return out
}
