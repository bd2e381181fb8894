// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package config

import "time"

// Config holds all application configuration.
//
// Loading order (see Load):
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (CONFIG_PATH, config.yaml, /etc/waypost/config.yaml)
//  3. Optional .env file, merged into the process environment
//  4. Environment variables
//
// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Events    EventsConfig    `koanf:"events"`
	Security  SecurityConfig  `koanf:"security"`
	Live      LiveConfig      `koanf:"live"`
	Aggregate AggregateConfig `koanf:"aggregate"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MaxBodyBytes caps the collector request body.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// Store backends.
const (
	BackendDuckDB     = "duckdb"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
	BackendBadger     = "badger"
	BackendMemory     = "memory"
)

// StoreConfig selects and configures the visit store.
//
// Environment Variables:
//   - STORE_BACKEND: duckdb (default), postgres, clickhouse, badger, memory
//   - DUCKDB_PATH, DUCKDB_MAX_MEMORY
//   - DATABASE_URL (postgres)
//   - CLICKHOUSE_ADDR, CLICKHOUSE_DATABASE, CLICKHOUSE_USERNAME, CLICKHOUSE_PASSWORD
//   - BADGER_DIR
type StoreConfig struct {
	Backend      string           `koanf:"backend"`
	QueryTimeout time.Duration    `koanf:"query_timeout"`
	DuckDB       DuckDBConfig     `koanf:"duckdb"`
	Postgres     PostgresConfig   `koanf:"postgres"`
	ClickHouse   ClickHouseConfig `koanf:"clickhouse"`
	Badger       BadgerConfig     `koanf:"badger"`
	Breaker      BreakerConfig    `koanf:"breaker"`
}

// DuckDBConfig configures the embedded DuckDB backend.
type DuckDBConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	// Migrate applies embedded schema migrations at startup.
	Migrate bool `koanf:"migrate"`
}

// ClickHouseConfig configures the ClickHouse backend.
type ClickHouseConfig struct {
	Addr     []string `koanf:"addr"`
	Database string   `koanf:"database"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
}

// BadgerConfig configures the embedded Badger backend.
type BadgerConfig struct {
	Dir      string `koanf:"dir"`
	InMemory bool   `koanf:"in_memory"`
}

// BreakerConfig configures the circuit breaker wrapped around store writes.
type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	Timeout          time.Duration `koanf:"timeout"`
	MaxRequests      uint32        `koanf:"max_requests"`
}

// EventsConfig configures the bus carrying new visits to live dashboards.
type EventsConfig struct {
	// Transport is "memory" (in-process) or "nats" (requires -tags=nats).
	Transport      string `koanf:"transport"`
	NATSURL        string `koanf:"nats_url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	StreamName     string `koanf:"stream_name"`
	// BufferSize is the per-subscriber channel capacity.
	BufferSize int `koanf:"buffer_size"`
}

// SecurityConfig holds rate limiting and cross-origin settings.
type SecurityConfig struct {
	CollectorRateLimitReqs   int           `koanf:"collector_rate_limit_reqs"`
	CollectorRateLimitWindow time.Duration `koanf:"collector_rate_limit_window"`
	RateLimitReqs            int           `koanf:"rate_limit_reqs"`
	RateLimitWindow          time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled        bool          `koanf:"rate_limit_disabled"`
	// CORSOrigins applies to dashboard read endpoints; the collector route
	// always allows any origin.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LiveConfig tunes live dashboard sessions.
type LiveConfig struct {
	TickInterval  time.Duration `koanf:"tick_interval"`
	RecentLimit   int           `koanf:"recent_limit"`
	DefaultWindow string        `koanf:"default_window"`
	FetchTimeout  time.Duration `koanf:"fetch_timeout"`
}

// AggregateConfig tunes the aggregation engine.
type AggregateConfig struct {
	TopN int `koanf:"top_n"`
	// CacheTTL is how long summary and breakdown responses are reused.
	// Zero disables the cache.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
