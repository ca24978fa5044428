// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

// Package main runs Chronicle as a standalone audit service: the audit
// engine over the configured store, the read API and the retention routine.
//
// # Application Architecture
//
// Components start in this order:
//
//  1. Configuration: defaults, then config.yaml, then environment (Koanf v2)
//  2. Logging: zerolog, bridged to slog for the supervisor
//  3. Storage: the configured backend, instrumented and (for network
//     backends) behind a circuit breaker
//  4. Audit engine: batching, retries and the flush timer
//  5. Supervisor tree: retention service and HTTP server
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor tree. Once the HTTP server and
// retention routine have stopped, the audit engine flushes its queue and
// closes the store.
//
// # Example Usage
//
//	export STORAGE_KIND=postgres
//	export STORAGE_DSN=postgres://chronicle:secret@db:5432/chronicle?sslmode=disable
//	export RETENTION_MAX_AGE=2160h
//	./chronicle
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/chronicle/internal/api"
	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/config"
	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/storage"
	"github.com/tomtom215/chronicle/internal/supervisor"
	"github.com/tomtom215/chronicle/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(cfg.Logging)
	logging.Info().
		Str("storage", string(cfg.Storage.Kind)).
		Bool("api_enabled", cfg.Server.Enabled).
		Bool("retention_enabled", cfg.Retention.Enabled).
		Msg("Starting Chronicle")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open audit store")
	}

	logger, err := audit.NewLogger(cfg.Audit, store)
	if err != nil {
		_ = store.Close()
		logging.Fatal().Err(err).Msg("Failed to start audit engine")
	}
	recordLifecycle(logger, audit.ActionSystemStart, "Chronicle started")

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		shutdownEngine(logger)
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if cfg.Retention.Enabled {
		retention, err := services.NewRetentionService(logger, services.RetentionConfig{
			MaxAge:   cfg.Retention.MaxAge,
			Interval: cfg.Retention.Interval,
			Optimize: func(ctx context.Context) error { return storage.Optimize(ctx, store) },
		})
		if err != nil {
			shutdownEngine(logger)
			logging.Fatal().Err(err).Msg("Failed to create retention service")
		}
		tree.AddMaintenanceService(retention)
		logging.Info().Dur("max_age", cfg.Retention.MaxAge).Msg("Retention service added to supervisor tree")
	}

	if cfg.Server.Enabled {
		mw := api.NewMiddleware(api.MiddlewareConfig{
			CORSAllowedOrigins: cfg.Server.CORSOrigins,
			RateLimitRequests:  cfg.Server.RateLimitRequests,
			RateLimitWindow:    cfg.Server.RateLimitWindow,
		})
		handler := api.NewHandler(logger, cfg.Server.MaxPageSize,
			api.WithStatsCacheTTL(cfg.Server.StatsCacheTTL))
		server := &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      api.NewRouter(handler, mw),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Msg("HTTP server added to supervisor tree")
	}

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// The tree exits once ctx is canceled or the root supervisor gives up.
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	recordLifecycle(logger, audit.ActionSystemStop, "Chronicle stopping")
	shutdownEngine(logger)
	logging.Info().Msg("Chronicle stopped")
}

// recordLifecycle audits a daemon start or stop through the engine itself.
func recordLifecycle(logger *audit.Logger, action audit.Action, description string) {
	host, _ := os.Hostname()
	logger.Log(audit.Event{
		Action:      action,
		ActorID:     "chronicle",
		ActorType:   audit.ActorSystem,
		Resource:    "system",
		ResourceID:  host,
		Success:     true,
		Description: description,
	})
}

// shutdownEngine flushes queued events and closes the store.
func shutdownEngine(logger *audit.Logger) {
	if err := logger.Shutdown(); err != nil {
		logging.Error().Err(err).Msg("Audit engine shutdown error")
	}
}
