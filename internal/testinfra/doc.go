// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

//go:build integration

// Package testinfra starts real database servers in Docker for the storage
// adapter integration tests, using testcontainers-go.
//
//	func TestContract(t *testing.T) {
//	    db := testinfra.StartForTest(t, testinfra.NewPostgresContainer)
//	    store, err := postgres.Open(ctx, postgres.Options{DSN: db.DSN})
//	    // ...
//	}
//
// Every helper skips the calling test when Docker is unavailable, so
//
//	go test -tags integration ./...
//
// degrades gracefully on machines without a daemon. The first run pulls the
// images; later runs use the local cache.
package testinfra
