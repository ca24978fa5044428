// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package postgres

import (
	"strings"
	"testing"
)

func TestDialect(t *testing.T) {
	d := Dialect()

	if got := d.Rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("Rebind = %q", got)
	}
	if !strings.HasSuffix(d.Insert, "ON CONFLICT (id) DO NOTHING") {
		t.Errorf("insert must skip existing ids: %s", d.Insert)
	}
	if d.WriteBatch == nil {
		t.Error("expected COPY batch writer")
	}

	join, cond, args := d.Search([]string{"disk", "quota"})
	if join != "" || !strings.Contains(cond, "plainto_tsquery('simple', ?)") {
		t.Errorf("search = %q %q", join, cond)
	}
	if len(args) != 1 || args[0] != "disk quota" {
		t.Errorf("search args = %v", args)
	}
}
