// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/models"
)

// ConfigurationError reports a missing or invalid setting that prevents the
// service from starting. It is distinct from a runtime storage failure so
// that an unconfigured store is never mistaken for an empty one.
type ConfigurationError struct {
	// Setting is the environment variable name of the offending setting.
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s %s", e.Setting, e.Reason)
}

func missing(setting, when string) error {
	return &ConfigurationError{Setting: setting, Reason: "is required when " + when}
}

func invalid(setting, format string, args ...interface{}) error {
	return &ConfigurationError{Setting: setting, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateLive(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("HTTP_PORT", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return invalid("HTTP_TIMEOUT", "must be positive")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return invalid("MAX_BODY_BYTES", "must be positive")
	}
	return nil
}

// Validate checks connection settings for the selected backend only and
// normalises Backend to lower case.
func (s *StoreConfig) Validate() error {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))

	switch s.Backend {
	case BackendDuckDB:
		if s.DuckDB.Path == "" {
			return missing("DUCKDB_PATH", "STORE_BACKEND=duckdb")
		}
	case BackendPostgres:
		if s.Postgres.DSN == "" {
			return missing("DATABASE_URL", "STORE_BACKEND=postgres")
		}
		u, err := url.Parse(s.Postgres.DSN)
		if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			return invalid("DATABASE_URL", "must be a postgres:// URL")
		}
	case BackendClickHouse:
		if len(s.ClickHouse.Addr) == 0 {
			return missing("CLICKHOUSE_ADDR", "STORE_BACKEND=clickhouse")
		}
		if s.ClickHouse.Database == "" {
			return missing("CLICKHOUSE_DATABASE", "STORE_BACKEND=clickhouse")
		}
	case BackendBadger:
		if s.Badger.Dir == "" && !s.Badger.InMemory {
			return missing("BADGER_DIR", "STORE_BACKEND=badger")
		}
	case BackendMemory:
	default:
		return invalid("STORE_BACKEND", "must be one of duckdb, postgres, clickhouse, badger, memory; got %q", s.Backend)
	}

	if s.QueryTimeout <= 0 {
		return invalid("STORE_QUERY_TIMEOUT", "must be positive")
	}
	if s.Breaker.Enabled && s.Breaker.FailureThreshold == 0 {
		return invalid("STORE_BREAKER_FAILURE_THRESHOLD", "must be at least 1")
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Transport {
	case "memory":
	case "nats":
		if c.Events.NATSURL == "" && !c.Events.EmbeddedServer {
			return missing("NATS_URL", "EVENTS_TRANSPORT=nats without an embedded server")
		}
	default:
		return invalid("EVENTS_TRANSPORT", "must be memory or nats, got %q", c.Events.Transport)
	}
	if c.Events.BufferSize < 1 {
		return invalid("EVENTS_BUFFER_SIZE", "must be at least 1")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.CollectorRateLimitReqs < 1 || c.Security.CollectorRateLimitWindow <= 0 {
		return invalid("COLLECTOR_RATE_LIMIT_REQS", "and COLLECTOR_RATE_LIMIT_WINDOW must be positive")
	}
	if c.Security.RateLimitReqs < 1 || c.Security.RateLimitWindow <= 0 {
		return invalid("RATE_LIMIT_REQS", "and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateLive() error {
	if c.Live.TickInterval <= 0 {
		return invalid("LIVE_TICK_INTERVAL", "must be positive")
	}
	if c.Live.RecentLimit < 1 {
		return invalid("LIVE_RECENT_LIMIT", "must be at least 1")
	}
	if _, err := models.ParseWindow(c.Live.DefaultWindow); err != nil {
		return invalid("LIVE_DEFAULT_WINDOW", "%v", err)
	}
	if c.Aggregate.TopN < 1 {
		return invalid("TOP_N", "must be at least 1")
	}
	if c.Aggregate.CacheTTL < 0 {
		return invalid("AGGREGATE_CACHE_TTL", "must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return invalid("LOG_LEVEL", "must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return invalid("LOG_FORMAT", "must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
