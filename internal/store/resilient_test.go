// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/models"
)

// flakyStore fails every call with err while failing is set.
type flakyStore struct {
	Memory
	failing atomic.Bool
	err     error
	calls   atomic.Int32
}

func (f *flakyStore) Insert(ctx context.Context, e *models.VisitEvent) error {
	f.calls.Add(1)
	if f.failing.Load() {
		return f.err
	}
	return f.Memory.Insert(ctx, e)
}

func breakerConfig() config.BreakerConfig {
	return config.BreakerConfig{Enabled: true, FailureThreshold: 3, Timeout: time.Hour, MaxRequests: 1}
}

func TestResilientOpensAfterConsecutiveFailures(t *testing.T) {
	flaky := &flakyStore{err: errors.New("connection refused")}
	flaky.failing.Store(true)
	r := NewResilient(flaky, "test_open", time.Second, breakerConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := r.Insert(ctx, visitAt("a", "T1", 0))
		var se *StorageError
		if !errors.As(err, &se) {
			t.Fatalf("attempt %d: error = %v, want *StorageError", i, err)
		}
	}
	if r.State() != "open" {
		t.Fatalf("State() = %s, want open", r.State())
	}

	err := r.Insert(ctx, visitAt("b", "T1", 0))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error while open = %v, want ErrOpenState", err)
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "insert" {
		t.Errorf("rejected call should still be a *StorageError, got %v", err)
	}
	if got := flaky.calls.Load(); got != 3 {
		t.Errorf("backend calls = %d, want 3 (open breaker must not reach backend)", got)
	}
}

func TestResilientIgnoresCallerCancellation(t *testing.T) {
	flaky := &flakyStore{err: context.Canceled}
	flaky.failing.Store(true)
	r := NewResilient(flaky, "test_cancel", 0, breakerConfig())

	for i := 0; i < 5; i++ {
		_ = r.Insert(context.Background(), visitAt("a", "T1", 0))
	}
	if r.State() != "closed" {
		t.Errorf("State() = %s, want closed", r.State())
	}
}

func TestResilientPassesResultsThrough(t *testing.T) {
	mem := NewMemory()
	r := NewResilient(mem, "test_pass", time.Second, breakerConfig())
	ctx := context.Background()

	if err := r.Insert(ctx, visitAt("a", "T1", time.Minute)); err != nil {
		t.Fatal(err)
	}
	events, err := r.ListSince(ctx, "T1", baseTime.Add(-time.Hour), 0)
	if err != nil || len(events) != 1 {
		t.Fatalf("ListSince() = %v, %v", events, err)
	}
	n, err := r.CountSince(ctx, "T1", baseTime.Add(-time.Hour))
	if err != nil || n != 1 {
		t.Errorf("CountSince() = %d, %v", n, err)
	}
	if r.Unwrap() != Store(mem) {
		t.Error("Unwrap() should return the decorated store")
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.StoreConfig
		wantSetting string
		wantType    string
	}{
		{
			name:        "postgres without dsn",
			cfg:         config.StoreConfig{Backend: "postgres", QueryTimeout: time.Second},
			wantSetting: "DATABASE_URL",
		},
		{
			name:        "clickhouse without addr",
			cfg:         config.StoreConfig{Backend: "clickhouse", QueryTimeout: time.Second},
			wantSetting: "CLICKHOUSE_ADDR",
		},
		{
			name:     "memory without breaker",
			cfg:      config.StoreConfig{Backend: "memory", QueryTimeout: time.Second},
			wantType: "*store.Memory",
		},
		{
			name:     "memory with breaker",
			cfg:      config.StoreConfig{Backend: "Memory", QueryTimeout: time.Second, Breaker: breakerConfig()},
			wantType: "*store.Resilient",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), tt.cfg)
			if tt.wantSetting != "" {
				var cfgErr *config.ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("Open() error = %v, want *config.ConfigurationError", err)
				}
				if cfgErr.Setting != tt.wantSetting {
					t.Errorf("Setting = %s, want %s", cfgErr.Setting, tt.wantSetting)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer s.Close()
			if got := typeName(s); got != tt.wantType {
				t.Errorf("Open() type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func typeName(s Store) string {
	switch s.(type) {
	case *Memory:
		return "*store.Memory"
	case *Resilient:
		return "*store.Resilient"
	default:
		return "other"
	}
}
