// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrSimulatedFailure is returned by MockService while it has failures left.
var ErrSimulatedFailure = errors.New("simulated failure")

// MockService is a controllable suture.Service for tests of the tree and of
// code that wires services into it.
type MockService struct {
	name       string
	startCount atomic.Int32
	stopCount  atomic.Int32
	failCount  atomic.Int32
	maxFails   int32
	err        error
	started    chan struct{}
	mu         sync.Mutex
}

// NewMockService creates a new mock service.
func NewMockService(name string) *MockService {
	return &MockService{name: name, started: make(chan struct{}, 64)}
}

// Serve fails SetFailCount times, then returns the SetError error, then
// blocks until ctx is canceled.
func (m *MockService) Serve(ctx context.Context) error {
	m.startCount.Add(1)
	defer m.stopCount.Add(1)
	select {
	case m.started <- struct{}{}:
	default:
	}

	m.mu.Lock()
	err := m.err
	maxFails := m.maxFails
	m.mu.Unlock()

	if maxFails > 0 && m.failCount.Add(1) <= maxFails {
		return ErrSimulatedFailure
	}
	if err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

// SetError makes Serve return err immediately.
func (m *MockService) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetFailCount makes the next n calls to Serve fail.
func (m *MockService) SetFailCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxFails = int32(n)
}

// Started receives once per Serve call (up to its buffer).
func (m *MockService) Started() <-chan struct{} {
	return m.started
}

// StartCount returns how many times Serve was called.
func (m *MockService) StartCount() int32 {
	return m.startCount.Load()
}

// StopCount returns how many times Serve returned.
func (m *MockService) StopCount() int32 {
	return m.stopCount.Load()
}

// String implements fmt.Stringer for supervisor logging.
func (m *MockService) String() string {
	return m.name
}
