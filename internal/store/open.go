// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package store

import (
	"context"

	"github.com/tomtom215/waypost/internal/config"
)

// Open builds the backend selected by cfg.Backend, wrapped in a Resilient
// decorator when the breaker is enabled. Missing connection settings are
// reported as *config.ConfigurationError before any connection is tried.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case config.BackendDuckDB:
		s, err = NewDuckDB(ctx, cfg.DuckDB)
	case config.BackendPostgres:
		s, err = NewPostgres(ctx, cfg.Postgres)
	case config.BackendClickHouse:
		s, err = NewClickHouse(ctx, cfg.ClickHouse)
	case config.BackendBadger:
		s, err = NewBadger(cfg.Badger)
	case config.BackendMemory:
		s = NewMemory()
	}
	if err != nil {
		return nil, err
	}

	if !cfg.Breaker.Enabled {
		return s, nil
	}
	return NewResilient(s, "store_"+cfg.Backend, cfg.QueryTimeout, cfg.Breaker), nil
}
