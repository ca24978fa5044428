// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/metrics"
)

func TestRequestIDWithLogging(t *testing.T) {
	var gotRequestID, gotCorrelationID string
	h := RequestIDWithLogging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = logging.RequestIDFromContext(r.Context())
		gotCorrelationID = logging.CorrelationIDFromContext(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if gotRequestID == "" || gotCorrelationID == "" {
			t.Fatalf("ids not set: request %q correlation %q", gotRequestID, gotCorrelationID)
		}
		if rec.Header().Get(RequestIDHeader) != gotRequestID {
			t.Errorf("response header = %q, want %q", rec.Header().Get(RequestIDHeader), gotRequestID)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		req.Header.Set(CorrelationIDHeader, "corr-456")
		h.ServeHTTP(httptest.NewRecorder(), req)
		if gotRequestID != "req-123" {
			t.Errorf("request id = %q", gotRequestID)
		}
		if gotCorrelationID != "corr-456" {
			t.Errorf("correlation id = %q", gotCorrelationID)
		}
	})
}

func TestRateLimit(t *testing.T) {
	mw := NewMiddleware(MiddlewareConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute})
	h := NewRouter(NewHandler(&fakeReader{}, 10), mw)

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/count", nil)
		req.RemoteAddr = "192.0.2.10:40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	// Health checks sit outside the limited group.
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.10:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code == http.StatusTooManyRequests {
		t.Error("healthz should not be rate limited")
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	mw := NewMiddleware(MiddlewareConfig{})
	called := 0
	h := mw.RateLimit()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called++ }))
	for range 50 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if called != 50 {
		t.Errorf("called = %d, want 50", called)
	}
}

func TestCORSPreflight(t *testing.T) {
	mw := NewMiddleware(MiddlewareConfig{CORSAllowedOrigins: []string{"https://siem.example.com"}})
	h := NewRouter(NewHandler(&fakeReader{}, 10), mw)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/audit/events", nil)
	req.Header.Set("Origin", "https://siem.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://siem.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/audit/events", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Allow-Origin %q for foreign origin", got)
	}
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	h := newFakeRouter(&fakeReader{})
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/audit/events/{id}", "404")
	before := testutil.ToFloat64(counter)

	do(t, h, "/api/v1/audit/events/abc")
	do(t, h, "/api/v1/audit/events/def")

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("counter delta = %v, want 2", got)
	}
}
