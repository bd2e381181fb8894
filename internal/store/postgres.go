// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// Postgres stores visits in PostgreSQL through a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to cfg.DSN and, when cfg.Migrate is set, applies the
// embedded schema migrations before returning.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	if cfg.Migrate {
		if err := migratePostgres(cfg.DSN); err != nil {
			return nil, wrap("migrate", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, wrap("open", fmt.Errorf("invalid DATABASE_URL: %w", err))
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, wrap("open", fmt.Errorf("failed to create pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrap("open", fmt.Errorf("failed to ping postgres: %w", err))
	}

	logging.Info().Int32("max_conns", poolCfg.MaxConns).Msg("PostgreSQL visit store ready")
	return &Postgres{pool: pool}, nil
}

// migratePostgres applies pending up migrations. The pgx/v5 migrate driver
// registers the pgx5:// scheme.
func migratePostgres(dsn string) error {
	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logging.Warn().AnErr("source_error", srcErr).AnErr("db_error", dbErr).Msg("Failed to close migrator")
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		logging.Info().Uint("version", version).Bool("dirty", dirty).Msg("PostgreSQL schema up to date")
	}
	return nil
}

func migrateURL(dsn string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}

func (p *Postgres) Insert(ctx context.Context, e *models.VisitEvent) (err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendPostgres, "insert", time.Since(start), err) }()

	_, err = p.pool.Exec(ctx,
		`INSERT INTO visits (`+visitColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.TrackerID, e.URL, e.Referrer, e.IP, e.UserAgent,
		e.Country, e.Browser, e.OS, e.DeviceType, e.CreatedAt.UTC(),
	)
	return wrap("insert", err)
}

func (p *Postgres) ListSince(ctx context.Context, trackerID string, since time.Time, limit int) (events []models.VisitEvent, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendPostgres, "list_since", time.Since(start), err) }()

	query := `SELECT ` + visitColumns + ` FROM visits
		WHERE tracker_id = $1 AND created_at > $2
		ORDER BY created_at DESC, id DESC`
	args := []interface{}{trackerID, since.UTC()}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list_since", err)
	}
	defer rows.Close()

	events, err = scanVisits(rows)
	return events, wrap("list_since", err)
}

func (p *Postgres) CountSince(ctx context.Context, trackerID string, since time.Time) (n int, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery(config.BackendPostgres, "count_since", time.Since(start), err) }()

	err = p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM visits WHERE tracker_id = $1 AND created_at > $2`,
		trackerID, since.UTC(),
	).Scan(&n)
	return n, wrap("count_since", err)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return wrap("ping", p.pool.Ping(ctx))
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
