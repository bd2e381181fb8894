// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

const duckdbSchema = `CREATE TABLE IF NOT EXISTS visits (
	id TEXT PRIMARY KEY,
	tracker_id TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	referrer TEXT NOT NULL,
	ip TEXT NOT NULL,
	user_agent TEXT NOT NULL,
	country TEXT NOT NULL,
	browser TEXT NOT NULL,
	os TEXT NOT NULL,
	device_type TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

const duckdbIndex = `CREATE INDEX IF NOT EXISTS idx_visits_tracker_created ON visits (tracker_id, created_at)`

const visitColumns = `id, tracker_id, url, referrer, ip, user_agent, country, browser, os, device_type, created_at`

// DuckDB stores visits in an embedded DuckDB database file.
type DuckDB struct {
	conn *sql.DB
	cfg  config.DuckDBConfig
}

// NewDuckDB opens (creating if needed) the database at cfg.Path and ensures
// the visits schema exists. Path ":memory:" opens a private in-memory
// database.
func NewDuckDB(ctx context.Context, cfg config.DuckDBConfig) (*DuckDB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, wrap("open", fmt.Errorf("failed to create database directory %s: %w", dbDir, err))
			}
		}
	}

	// Extensions are never needed; disabling auto-install avoids network
	// lookups in restricted environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, wrap("open", fmt.Errorf("failed to open database: %w", err))
	}

	db := &DuckDB{conn: conn, cfg: cfg}
	db.configureConnectionPool()

	if err := db.initialize(ctx); err != nil {
		closeQuietly(conn)
		return nil, wrap("open", fmt.Errorf("failed to initialize database: %w", err))
	}

	logging.Info().Str("path", cfg.Path).Int("threads", numThreads).Msg("DuckDB visit store ready")
	return db, nil
}

// configureConnectionPool sets connection pool parameters
func (db *DuckDB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

func (db *DuckDB) initialize(ctx context.Context) error {
	for _, q := range []string{duckdbSchema, duckdbIndex} {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", q, err)
		}
	}
	return nil
}

func (db *DuckDB) Insert(ctx context.Context, e *models.VisitEvent) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendDuckDB, "insert", time.Since(start), err) }()

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO visits (`+visitColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TrackerID, e.URL, e.Referrer, e.IP, e.UserAgent,
		e.Country, e.Browser, e.OS, e.DeviceType, e.CreatedAt.UTC(),
	)
	return wrap("insert", err)
}

func (db *DuckDB) ListSince(ctx context.Context, trackerID string, since time.Time, limit int) (events []models.VisitEvent, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendDuckDB, "list_since", time.Since(start), err) }()

	query := `SELECT ` + visitColumns + ` FROM visits
		WHERE tracker_id = ? AND created_at > ?
		ORDER BY created_at DESC, id DESC`
	args := []interface{}{trackerID, since.UTC()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list_since", err)
	}
	defer rows.Close()

	events, err = scanVisits(rows)
	return events, wrap("list_since", err)
}

func (db *DuckDB) CountSince(ctx context.Context, trackerID string, since time.Time) (n int, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendDuckDB, "count_since", time.Since(start), err) }()

	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM visits WHERE tracker_id = ? AND created_at > ?`,
		trackerID, since.UTC(),
	).Scan(&n)
	return n, wrap("count_since", err)
}

func (db *DuckDB) Ping(ctx context.Context) error {
	return wrap("ping", db.conn.PingContext(ctx))
}

func (db *DuckDB) Close() error {
	return wrap("close", db.conn.Close())
}

// rowScanner is satisfied by *sql.Rows and pgx.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanVisits(rows rowScanner) ([]models.VisitEvent, error) {
	events := make([]models.VisitEvent, 0)
	for rows.Next() {
		var e models.VisitEvent
		if err := rows.Scan(
			&e.ID, &e.TrackerID, &e.URL, &e.Referrer, &e.IP, &e.UserAgent,
			&e.Country, &e.Browser, &e.OS, &e.DeviceType, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
