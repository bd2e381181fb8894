// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

const clickhouseSchema = `CREATE TABLE IF NOT EXISTS visits (
	id String,
	tracker_id String,
	url String,
	referrer String,
	ip String,
	user_agent String,
	country LowCardinality(String),
	browser LowCardinality(String),
	os LowCardinality(String),
	device_type LowCardinality(String),
	created_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (tracker_id, created_at)`

// ClickHouse stores visits in a ClickHouse MergeTree table over the native
// protocol.
type ClickHouse struct {
	conn driver.Conn
}

// NewClickHouse connects to the configured cluster and ensures the visits
// table exists.
func NewClickHouse(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "waypost", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, wrap("open", fmt.Errorf("failed to connect to ClickHouse: %w", err))
	}

	if err := conn.Ping(ctx); err != nil {
		closeQuietly(conn)
		return nil, wrap("open", fmt.Errorf("failed to ping ClickHouse: %w", err))
	}
	if err := conn.Exec(ctx, clickhouseSchema); err != nil {
		closeQuietly(conn)
		return nil, wrap("open", fmt.Errorf("failed to create visits table: %w", err))
	}

	logging.Info().Strs("addr", cfg.Addr).Str("database", cfg.Database).Msg("ClickHouse visit store ready")
	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) Insert(ctx context.Context, e *models.VisitEvent) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendClickHouse, "insert", time.Since(start), err) }()

	batch, err := c.conn.PrepareBatch(ctx, `INSERT INTO visits (`+visitColumns+`)`)
	if err != nil {
		return wrap("insert", fmt.Errorf("failed to prepare insert: %w", err))
	}
	if err = batch.Append(
		e.ID, e.TrackerID, e.URL, e.Referrer, e.IP, e.UserAgent,
		e.Country, e.Browser, e.OS, e.DeviceType, e.CreatedAt.UTC(),
	); err != nil {
		_ = batch.Abort()
		return wrap("insert", err)
	}
	return wrap("insert", batch.Send())
}

func (c *ClickHouse) ListSince(ctx context.Context, trackerID string, since time.Time, limit int) (events []models.VisitEvent, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendClickHouse, "list_since", time.Since(start), err) }()

	query := `SELECT ` + visitColumns + ` FROM visits
		WHERE tracker_id = ? AND created_at > ?
		ORDER BY created_at DESC, id DESC`
	args := []interface{}{trackerID, since.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list_since", err)
	}
	defer rows.Close()

	events, err = scanVisits(rows)
	return events, wrap("list_since", err)
}

func (c *ClickHouse) CountSince(ctx context.Context, trackerID string, since time.Time) (n int, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendClickHouse, "count_since", time.Since(start), err) }()

	var count uint64
	err = c.conn.QueryRow(ctx,
		`SELECT count() FROM visits WHERE tracker_id = ? AND created_at > ?`,
		trackerID, since.UTC(),
	).Scan(&count)
	return int(count), wrap("count_since", err)
}

func (c *ClickHouse) Ping(ctx context.Context) error {
	return wrap("ping", c.conn.Ping(ctx))
}

func (c *ClickHouse) Close() error {
	return wrap("close", c.conn.Close())
}
