// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package store

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

// Resilient decorates a Store with a per-operation timeout and a circuit
// breaker. While the breaker is open, calls fail fast with a
// *StorageError wrapping gobreaker.ErrOpenState.
type Resilient struct {
	next    Store
	cb      *gobreaker.CircuitBreaker[interface{}]
	timeout time.Duration
	name    string
}

// NewResilient wraps next. A zero timeout disables the per-call deadline.
func NewResilient(next Store, name string, timeout time.Duration, cfg config.BreakerConfig) *Resilient {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up is not a backend failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String(), int(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Store circuit breaker state changed")
		},
	}

	return &Resilient{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker[interface{}](settings),
		timeout: timeout,
		name:    name,
	}
}

// State reports the breaker state for health checks.
func (r *Resilient) State() string {
	return r.cb.State().String()
}

// Unwrap returns the decorated store.
func (r *Resilient) Unwrap() Store {
	return r.next
}

func (r *Resilient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Resilient) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := r.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.RecordBreakerRequest(r.name, "success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordBreakerRequest(r.name, "rejected")
	default:
		metrics.RecordBreakerRequest(r.name, "failure")
	}
	return result, wrap(op, err)
}

func (r *Resilient) Insert(ctx context.Context, event *models.VisitEvent) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.execute("insert", func() (interface{}, error) {
		return nil, r.next.Insert(ctx, event)
	})
	return err
}

func (r *Resilient) ListSince(ctx context.Context, trackerID string, since time.Time, limit int) ([]models.VisitEvent, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	result, err := r.execute("list_since", func() (interface{}, error) {
		return r.next.ListSince(ctx, trackerID, since, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.VisitEvent), nil
}

func (r *Resilient) CountSince(ctx context.Context, trackerID string, since time.Time) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	result, err := r.execute("count_since", func() (interface{}, error) {
		return r.next.CountSince(ctx, trackerID, since)
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

// Ping bypasses the breaker so readiness reflects the backend itself.
func (r *Resilient) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.next.Ping(ctx)
}

func (r *Resilient) Close() error {
	return r.next.Close()
}
