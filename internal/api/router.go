// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package api serves the read side of the audit engine over HTTP.
//
// Routes:
//
//	GET /api/v1/audit/events        list events (filter query parameters)
//	GET /api/v1/audit/events/{id}   one event
//	GET /api/v1/audit/count         number of matching events
//	GET /api/v1/audit/stats         aggregate statistics for a time range
//	GET /api/v1/audit/export        JSON or CEF download
//	GET /healthz                    store health
//	GET /metrics                    Prometheus metrics
//
// Events are written through the in-process engine only; the API is
// read-only.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the chi router for the read API.
func NewRouter(h *Handler, mw *Middleware) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(Metrics)
	r.Use(mw.CORS())
	r.Use(chimiddleware.Compress(5, "application/json", "text/plain"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed", nil)
	})

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/audit", func(r chi.Router) {
		r.Use(mw.RateLimit())

		r.Get("/events", h.ListEvents)
		r.Get("/events/{id}", h.GetEvent)
		r.Get("/count", h.CountEvents)
		r.Get("/stats", h.Stats)
		r.Get("/export", h.Export)
	})

	return r
}
