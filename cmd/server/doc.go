// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

/*
Package main is the entry point for the Waypost server.

Waypost records page visits posted by a tracking snippet embedded in other
websites and serves per-tracker analytics and live dashboards over them.

# Startup

 1. Configuration: koanf (defaults, config.yaml, .env, environment)
 2. Logging: zerolog, JSON or console
 3. Store: duckdb, postgres, clickhouse, badger or memory, optionally behind
    a circuit breaker
 4. Event bus: Watermill over gochannel, or NATS JetStream with -tags nats
 5. Supervisor tree (suture v4):

	waypost
	├── data-layer
	│   └── store-health
	├── messaging-layer
	│   ├── websocket-hub
	│   └── live-bridge
	└── api-layer
	    └── http-server

A missing or invalid setting (for example STORE_BACKEND=postgres without
DATABASE_URL) is reported as a configuration error and the process exits
with status 2 before opening any listener. Runtime failures exit with 1.

# Endpoints

	POST /api/track                              collector (any origin)
	GET  /api/v1/trackers/{id}/stats             summary
	GET  /api/v1/trackers/{id}/visits            recent visits
	GET  /api/v1/trackers/{id}/breakdown/{field} category counts
	GET  /api/v1/trackers/{id}/online            active visitors (any origin)
	GET  /api/v1/live                            live dashboard WebSocket
	GET  /health/live, /health/ready, /metrics

# Signals

SIGINT and SIGTERM cancel the tree: the HTTP server drains in-flight
requests, the hub closes dashboards, then the bus and store are closed.
*/
package main
