// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package mysql

import (
	"context"
	"strings"
	"testing"
)

func TestFulltextSearch(t *testing.T) {
	tests := []struct {
		name  string
		terms []string
		want  string
	}{
		{"single", []string{"quota"}, "+quota*"},
		{"all required", []string{"disk", "quota"}, "+disk* +quota*"},
		{"operators stripped", []string{"-quota", `"disk"`, "(a)*"}, "+quota* +disk* +a*"},
		{"only operators", []string{"+-", "***"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cond, args := fulltextSearch(tt.terms)
			if tt.want == "" {
				if cond != "" || len(args) != 0 {
					t.Errorf("expected no predicate, got %q %v", cond, args)
				}
				return
			}
			if !strings.Contains(cond, "IN BOOLEAN MODE") {
				t.Errorf("cond = %q", cond)
			}
			if len(args) != 1 || args[0] != tt.want {
				t.Errorf("args = %v, want %q", args, tt.want)
			}
		})
	}
}

func TestDialect(t *testing.T) {
	d := Dialect()
	if d.Rebind != nil {
		t.Error("mysql uses '?' placeholders")
	}
	if !strings.HasSuffix(d.Insert, "ON DUPLICATE KEY UPDATE id = id") {
		t.Errorf("insert must skip existing ids: %s", d.Insert)
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	if _, err := Open(context.Background(), Options{}); err == nil {
		t.Error("expected error for empty DSN")
	}
	if _, err := Open(context.Background(), Options{DSN: "not a dsn"}); err == nil {
		t.Error("expected error for malformed DSN")
	}
}
