// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSlogHandler_Levels(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, `"level":"debug"`},
		{slog.LevelInfo, `"level":"info"`},
		{slog.LevelWarn, `"level":"warn"`},
		{slog.LevelError, `"level":"error"`},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewSlogHandler(zerolog.New(&buf).Level(zerolog.TraceLevel)))

			logger.Log(context.Background(), tt.level, "hello")

			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %s missing %s", buf.String(), tt.want)
			}
		})
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	h := NewSlogHandler(zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel))

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn")
	}
}

func TestSlogHandler_Attrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewSlogHandler(zerolog.New(&buf)))

	logger.With("service", "retention").
		WithGroup("run").
		Info("purged",
			"count", 12,
			"ok", true,
			"took", 1500*time.Millisecond,
			"err", errors.New("partial"),
			slog.Group("window", "days", 30),
		)

	output := buf.String()
	for _, want := range []string{
		`"service":"retention"`,
		`"run.count":12`,
		`"run.ok":true`,
		`"run.err":"partial"`,
		`"run.window.days":30`,
		`"message":"purged"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestNewSlogLogger_UsesGlobal(t *testing.T) {
	buf := captureGlobal(t, Config{})

	NewSlogLogger().Warn("supervisor restart", "service", "api")

	if !strings.Contains(buf.String(), `"service":"api"`) {
		t.Errorf("slog output should reach the global logger: %s", buf.String())
	}
}
