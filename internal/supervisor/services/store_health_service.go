// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
)

// Defaults for StoreHealthService.
const (
	DefaultHealthInterval = 15 * time.Second
	DefaultHealthTimeout  = 2 * time.Second
)

// Pinger is satisfied by store.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreHealthService pings the visit store on an interval and publishes the
// result as the waypost_store_up gauge. Only transitions are logged.
type StoreHealthService struct {
	store    Pinger
	backend  string
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	// onCheck, when set, observes every result. Used by tests.
	onCheck func(up bool)
}

// NewStoreHealthService creates a health monitor for store. Non-positive
// durations use the package defaults.
func NewStoreHealthService(store Pinger, backend string, interval, timeout time.Duration) *StoreHealthService {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	return &StoreHealthService{
		store:    store,
		backend:  backend,
		interval: interval,
		timeout:  timeout,
		logger:   logging.WithComponent("store-health"),
	}
}

// Serve implements suture.Service. A failed ping never stops the service.
func (s *StoreHealthService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	up := s.check(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			up = s.check(ctx, up)
		}
	}
}

func (s *StoreHealthService) check(ctx context.Context, wasUp bool) bool {
	pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.store.Ping(pingCtx)
	cancel()

	up := err == nil
	if up {
		metrics.StoreUp.Set(1)
	} else {
		metrics.StoreUp.Set(0)
	}

	switch {
	case !up && wasUp:
		s.logger.Warn().Err(err).Str("backend", s.backend).Msg("Store health check failed")
	case up && !wasUp:
		s.logger.Info().Str("backend", s.backend).Msg("Store health restored")
	}
	if s.onCheck != nil {
		s.onCheck(up)
	}
	return up
}

// String implements fmt.Stringer for supervisor logging.
func (s *StoreHealthService) String() string {
	return "store-health"
}
