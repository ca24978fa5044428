// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/chronicle/internal/logging"
	"github.com/tomtom215/chronicle/internal/metrics"
)

// Purger deletes events older than a cutoff. *audit.Logger satisfies it.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// RetentionConfig configures RetentionService.
type RetentionConfig struct {
	// MaxAge is how long events are kept.
	MaxAge time.Duration

	// Interval is the time between runs. The first run starts immediately.
	Interval time.Duration

	// Optimize, when set, runs after a pass that deleted rows.
	Optimize func(ctx context.Context) error
}

// RetentionService periodically purges events older than MaxAge.
//
// A failed pass is logged and counted but does not stop the service; the
// next tick retries. Only context cancellation ends Serve.
type RetentionService struct {
	purger Purger
	cfg    RetentionConfig
	now    func() time.Time
}

// NewRetentionService validates cfg and returns the service.
func NewRetentionService(purger Purger, cfg RetentionConfig) (*RetentionService, error) {
	if purger == nil {
		return nil, fmt.Errorf("retention: purger is required")
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("retention: max age must be positive, got %v", cfg.MaxAge)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("retention: interval must be positive, got %v", cfg.Interval)
	}
	return &RetentionService{purger: purger, cfg: cfg, now: time.Now}, nil
}

// Serve implements suture.Service.
func (r *RetentionService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		_, _ = r.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single retention pass and returns the number of events
// deleted.
func (r *RetentionService) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.cfg.MaxAge)
	start := time.Now()

	deleted, err := r.purger.Purge(ctx, cutoff)
	metrics.RecordRetentionRun(deleted, err)
	if err != nil {
		if ctx.Err() == nil {
			logging.Error().Err(err).Time("cutoff", cutoff).Msg("Retention pass failed")
		}
		return 0, fmt.Errorf("retention purge: %w", err)
	}

	logging.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Dur("duration", time.Since(start)).
		Msg("Retention pass completed")

	if deleted > 0 && r.cfg.Optimize != nil {
		if err := r.cfg.Optimize(ctx); err != nil {
			logging.Warn().Err(err).Msg("Post-retention store maintenance failed")
		}
	}
	return deleted, nil
}

// String names the service in supervisor events.
func (r *RetentionService) String() string {
	return "retention"
}
