// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/waypost/config.yaml",
	"/etc/waypost/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DotEnvPathEnvVar overrides the .env file path.
const DotEnvPathEnvVar = "DOTENV_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    16 << 10,
		},
		Store: StoreConfig{
			Backend:      BackendDuckDB,
			QueryTimeout: 10 * time.Second,
			DuckDB: DuckDBConfig{
				Path:      "/data/waypost.duckdb",
				MaxMemory: "1GB",
			},
			Postgres: PostgresConfig{
				MaxConns: 10,
				Migrate:  true,
			},
			ClickHouse: ClickHouseConfig{
				Database: "default",
				Username: "default",
			},
			Badger: BadgerConfig{
				Dir: "/data/badger",
			},
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          30 * time.Second,
				MaxRequests:      1,
			},
		},
		Events: EventsConfig{
			Transport:      "memory",
			NATSURL:        "nats://127.0.0.1:4222",
			EmbeddedServer: false,
			StoreDir:       "/data/nats",
			StreamName:     "VISITS",
			BufferSize:     256,
		},
		Security: SecurityConfig{
			CollectorRateLimitReqs:   600,
			CollectorRateLimitWindow: time.Minute,
			RateLimitReqs:            300,
			RateLimitWindow:          time.Minute,
			RateLimitDisabled:        false,
			CORSOrigins:              []string{},
		},
		Live: LiveConfig{
			TickInterval:  time.Second,
			RecentLimit:   20,
			DefaultWindow: "24h",
			FetchTimeout:  15 * time.Second,
		},
		Aggregate: AggregateConfig{
			TopN:     5,
			CacheTTL: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load reads configuration from defaults, an optional YAML file, an
// optional .env file and the environment, then validates it.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadDotEnv merges a .env file into the process environment. Variables
// already set in the environment win. A missing default .env is not an
// error; a missing explicit DOTENV_PATH is.
func loadDotEnv() error {
	path := os.Getenv(DotEnvPathEnvVar)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"store.clickhouse.addr",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
var envMappings = map[string]string{
	"http_port":             "server.port",
	"http_host":             "server.host",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"max_body_bytes":        "server.max_body_bytes",

	"store_backend":                   "store.backend",
	"store_query_timeout":             "store.query_timeout",
	"duckdb_path":                     "store.duckdb.path",
	"duckdb_max_memory":               "store.duckdb.max_memory",
	"duckdb_threads":                  "store.duckdb.threads",
	"database_url":                    "store.postgres.dsn",
	"postgres_max_conns":              "store.postgres.max_conns",
	"postgres_migrate":                "store.postgres.migrate",
	"clickhouse_addr":                 "store.clickhouse.addr",
	"clickhouse_database":             "store.clickhouse.database",
	"clickhouse_username":             "store.clickhouse.username",
	"clickhouse_password":             "store.clickhouse.password",
	"badger_dir":                      "store.badger.dir",
	"badger_in_memory":                "store.badger.in_memory",
	"store_breaker_enabled":           "store.breaker.enabled",
	"store_breaker_failure_threshold": "store.breaker.failure_threshold",
	"store_breaker_timeout":           "store.breaker.timeout",

	"events_transport":   "events.transport",
	"nats_url":           "events.nats_url",
	"nats_embedded":      "events.embedded_server",
	"nats_store_dir":     "events.store_dir",
	"nats_stream_name":   "events.stream_name",
	"events_buffer_size": "events.buffer_size",

	"collector_rate_limit_reqs":   "security.collector_rate_limit_reqs",
	"collector_rate_limit_window": "security.collector_rate_limit_window",
	"rate_limit_reqs":             "security.rate_limit_reqs",
	"rate_limit_window":           "security.rate_limit_window",
	"disable_rate_limit":          "security.rate_limit_disabled",
	"cors_origins":                "security.cors_origins",

	"live_tick_interval":  "live.tick_interval",
	"live_recent_limit":   "live.recent_limit",
	"live_default_window": "live.default_window",
	"live_fetch_timeout":  "live.fetch_timeout",

	"top_n":               "aggregate.top_n",
	"aggregate_cache_ttl": "aggregate.cache_ttl",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its koanf path.
// Unmapped variables return "" and are ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
