// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package logging

import (
	"context"
	"strings"
	"testing"
)

func TestGenerateIDs(t *testing.T) {
	if id := GenerateCorrelationID(); len(id) != 8 {
		t.Errorf("correlation ID length = %d, want 8", len(id))
	}
	if id := GenerateRequestID(); len(id) != 36 {
		t.Errorf("request ID length = %d, want 36", len(id))
	}
	if GenerateRequestID() == GenerateRequestID() {
		t.Error("request IDs should be unique")
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	if CorrelationIDFromContext(ctx) != "" || RequestIDFromContext(ctx) != "" {
		t.Fatal("empty context should carry no IDs")
	}

	ctx = ContextWithCorrelationID(ctx, "abc12345")
	ctx = ContextWithRequestID(ctx, "req-1")

	if got := CorrelationIDFromContext(ctx); got != "abc12345" {
		t.Errorf("correlation ID = %q", got)
	}
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("request ID = %q", got)
	}
}

func TestCtx_AddsFields(t *testing.T) {
	buf := captureGlobal(t, Config{})

	ctx := ContextWithCorrelationID(context.Background(), "corr-9")
	ctx = ContextWithRequestID(ctx, "req-9")
	Ctx(ctx).Info().Msg("handled")

	output := buf.String()
	for _, want := range []string{`"correlation_id":"corr-9"`, `"request_id":"req-9"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestCtx_NoFields(t *testing.T) {
	buf := captureGlobal(t, Config{})

	Ctx(context.Background()).Info().Msg("bare")

	if strings.Contains(buf.String(), "correlation_id") {
		t.Errorf("unexpected correlation_id: %s", buf.String())
	}
}
