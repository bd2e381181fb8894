// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package testinfra starts real database servers in Docker for integration
// tests of the store backends.
//
// Every file is behind the integration build tag:
//
//	go test -tags integration ./internal/store/...
//
// Example:
//
//	func TestPostgresStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    testinfra.CleanupContainer(t, pg)
//
//	    s, err := store.NewPostgres(ctx, config.PostgresConfig{DSN: pg.DSN, Migrate: true})
//	    // ...
//	}
package testinfra
