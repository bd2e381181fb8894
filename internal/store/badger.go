// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

// Key layout: "v/" + uvarint(len(trackerID)) + trackerID + created_at
// (8 bytes big-endian unix nanos) + id. The length prefix keeps one
// tracker's prefix from matching another tracker whose ID extends it,
// whatever bytes the IDs contain.
const visitKeyPrefix = "v/"

// Badger stores visits in an embedded BadgerDB key-value store. Keys sort
// by tracker then time, so a window query is one reverse prefix scan.
type Badger struct {
	db *badger.DB
}

// NewBadger opens the store at cfg.Dir, or a purely in-memory instance when
// cfg.InMemory is set.
func NewBadger(cfg config.BadgerConfig) (*Badger, error) {
	opts := badger.DefaultOptions(cfg.Dir).WithLogger(badgerLogger{})
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, wrap("open", fmt.Errorf("failed to open badger at %q: %w", cfg.Dir, err))
	}

	logging.Info().Str("dir", cfg.Dir).Bool("in_memory", cfg.InMemory).Msg("Badger visit store ready")
	return &Badger{db: db}, nil
}

func trackerPrefix(trackerID string) []byte {
	p := make([]byte, 0, len(visitKeyPrefix)+binary.MaxVarintLen64+len(trackerID))
	p = append(p, visitKeyPrefix...)
	p = binary.AppendUvarint(p, uint64(len(trackerID)))
	return append(p, trackerID...)
}

func visitKey(e *models.VisitEvent) []byte {
	prefix := trackerPrefix(e.TrackerID)
	key := make([]byte, len(prefix), len(prefix)+8+len(e.ID))
	copy(key, prefix)
	key = binary.BigEndian.AppendUint64(key, uint64(e.CreatedAt.UnixNano()))
	return append(key, e.ID...)
}

func (b *Badger) Insert(ctx context.Context, e *models.VisitEvent) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendBadger, "insert", time.Since(start), err) }()

	if err = ctx.Err(); err != nil {
		return wrap("insert", err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return wrap("insert", fmt.Errorf("marshal visit: %w", err))
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(visitKey(e), data)
	})
	return wrap("insert", err)
}

// scan walks a tracker's keys newest first, stopping at the first key not
// strictly after since or when fn returns false.
func (b *Badger) scan(ctx context.Context, trackerID string, since time.Time, withValues bool, fn func(item *badger.Item) (bool, error)) error {
	prefix := trackerPrefix(trackerID)
	// UnixNano is undefined before 1678; treat such bounds as open.
	bounded := since.Year() >= 1678
	sinceNanos := uint64(since.UnixNano())

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = withValues
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek lands on the largest key <= seek, so seek past
		// every possible timestamp for this tracker.
		seek := append(bytes.Clone(prefix), bytes.Repeat([]byte{0xFF}, 9)...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.Key()
			if len(key) < len(prefix)+8 {
				continue
			}
			if bounded && binary.BigEndian.Uint64(key[len(prefix):len(prefix)+8]) <= sinceNanos {
				return nil
			}
			more, err := fn(item)
			if err != nil || !more {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) ListSince(ctx context.Context, trackerID string, since time.Time, limit int) (events []models.VisitEvent, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendBadger, "list_since", time.Since(start), err) }()

	events = make([]models.VisitEvent, 0)
	err = b.scan(ctx, trackerID, since, true, func(item *badger.Item) (bool, error) {
		var e models.VisitEvent
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		}); err != nil {
			return false, fmt.Errorf("decode visit %q: %w", strings.ToValidUTF8(string(item.Key()), "?"), err)
		}
		events = append(events, e)
		return limit <= 0 || len(events) < limit, nil
	})
	if err != nil {
		return nil, wrap("list_since", err)
	}
	return events, nil
}

func (b *Badger) CountSince(ctx context.Context, trackerID string, since time.Time) (n int, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendBadger, "count_since", time.Since(start), err) }()

	err = b.scan(ctx, trackerID, since, false, func(*badger.Item) (bool, error) {
		n++
		return true, nil
	})
	return n, wrap("count_since", err)
}

func (b *Badger) Ping(ctx context.Context) error {
	if b.db.IsClosed() {
		return wrap("ping", ErrClosed)
	}
	return nil
}

func (b *Badger) Close() error {
	return wrap("close", b.db.Close())
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Trace().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}
