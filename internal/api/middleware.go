// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/metrics"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// CorrelationIDHeader lets a caller tie API reads to its own trace.
const CorrelationIDHeader = "X-Correlation-ID"

type startTimeKey struct{}

// MiddlewareConfig holds the CORS and rate limit settings of the router.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string
	CORSMaxAge         int

	// RateLimitRequests per RateLimitWindow per client IP. Zero disables
	// rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Middleware builds the router's shared middleware from MiddlewareConfig.
type Middleware struct {
	config      MiddlewareConfig
	corsHandler func(http.Handler) http.Handler
}

// NewMiddleware creates the CORS handler once so every route shares it.
func NewMiddleware(cfg MiddlewareConfig) *Middleware {
	if cfg.CORSMaxAge == 0 {
		cfg.CORSMaxAge = 86400
	}
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Middleware{
		config: cfg,
		corsHandler: cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", RequestIDHeader, CorrelationIDHeader},
			ExposedHeaders:   []string{RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           cfg.CORSMaxAge,
		}),
	}
}

// CORS returns the go-chi/cors handler.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.corsHandler
}

// RateLimit limits requests per client IP with httprate. It passes requests
// through unchanged when rate limiting is disabled.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	if m.config.RateLimitRequests <= 0 || m.config.RateLimitWindow <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		m.config.RateLimitRequests,
		m.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, ErrCodeTooManyRequests, "Rate limit exceeded", nil)
		}),
	)
}

// RequestIDWithLogging puts request and correlation IDs into the request
// context for logging.Ctx and echoes the request ID to the client. A
// caller-provided X-Correlation-ID is kept; otherwise a new one is generated.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		// chi's RequestID reuses the header we set below
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set(RequestIDHeader, requestID)
			}
			correlationID := r.Header.Get(CorrelationIDHeader)
			if correlationID == "" {
				correlationID = logging.GenerateCorrelationID()
			}

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			ctx = logging.ContextWithCorrelationID(ctx, correlationID)
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			w.Header().Set(RequestIDHeader, requestID)
			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Metrics records request count and latency labelled by the matched chi
// route pattern, which keeps label cardinality bounded.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		metrics.RecordAPIRequest(r.Method, route, status, duration)

		logging.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", duration).
			Msg("API request")
	})
}
