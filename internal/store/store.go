// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tomtom215/waypost/internal/models"
)

// Store persists visit events. Implementations must be safe for concurrent
// use; each Insert is atomic.
type Store interface {
	// Insert writes one event. The event must already carry its ID and
	// CreatedAt.
	Insert(ctx context.Context, event *models.VisitEvent) error

	// ListSince returns events for trackerID created strictly after since,
	// newest first. limit <= 0 means no limit.
	ListSince(ctx context.Context, trackerID string, since time.Time, limit int) ([]models.VisitEvent, error)

	// CountSince counts events for trackerID created strictly after since.
	CountSince(ctx context.Context, trackerID string, since time.Time) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// StorageError wraps any failure reported by a backend.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// wrap returns err as a *StorageError unless it already is one.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// closeQuietly closes a resource during cleanup paths where the error
// cannot be acted on.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
