// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/waypost/internal/models"
)

// Memory is an in-process Store backed by a slice kept in CreatedAt order.
// It is used by tests and by demo deployments with backend "memory".
type Memory struct {
	mu     sync.RWMutex
	events []models.VisitEvent
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Insert(ctx context.Context, event *models.VisitEvent) error {
	if err := ctx.Err(); err != nil {
		return wrap("insert", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return wrap("insert", ErrClosed)
	}

	// Insert sorted by CreatedAt ascending; equal timestamps keep arrival order.
	i := sort.Search(len(m.events), func(i int) bool {
		return m.events[i].CreatedAt.After(event.CreatedAt)
	})
	m.events = append(m.events, models.VisitEvent{})
	copy(m.events[i+1:], m.events[i:])
	m.events[i] = *event
	return nil
}

func (m *Memory) ListSince(ctx context.Context, trackerID string, since time.Time, limit int) ([]models.VisitEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("list_since", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, wrap("list_since", ErrClosed)
	}

	out := make([]models.VisitEvent, 0)
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if !e.CreatedAt.After(since) {
			break
		}
		if e.TrackerID != trackerID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) CountSince(ctx context.Context, trackerID string, since time.Time) (int, error) {
	events, err := m.ListSince(ctx, trackerID, since, 0)
	if err != nil {
		return 0, wrap("count_since", err)
	}
	return len(events), nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return wrap("ping", ErrClosed)
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.events = nil
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
