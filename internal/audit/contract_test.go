// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit_test

import (
	"testing"

	"github.com/tomtom215/chronicle/internal/audit"
	"github.com/tomtom215/chronicle/internal/storage/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) audit.Store {
		s := audit.NewMemoryStore(0)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
