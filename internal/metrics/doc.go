// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered on the default registry through promauto and
exposed at /metrics by the API router.

# Available Metrics

Ingestion:
  - waypost_visits_recorded_total{device_type}
  - waypost_ingest_failures_total{reason}
  - waypost_ingest_duration_seconds

Store:
  - waypost_store_query_duration_seconds{backend,operation}
  - waypost_store_query_errors_total{backend,operation}

Event bus and live sync:
  - waypost_bus_messages_published_total{transport,result}
  - waypost_bus_messages_consumed_total{result}
  - waypost_live_subscriptions
  - waypost_live_events_dropped_total
  - waypost_live_fetch_duration_seconds{result}

HTTP and WebSocket:
  - api_requests_total{method,endpoint,status_code}
  - api_request_duration_seconds{method,endpoint}
  - api_active_requests, api_rate_limit_hits_total{endpoint}
  - websocket_connections, websocket_messages_sent_total,
    websocket_messages_received_total, websocket_errors_total{error_type}

Circuit breakers:
  - circuit_breaker_state{name}
  - circuit_breaker_requests_total{name,result}
  - circuit_breaker_state_transitions_total{name,from_state,to_state}

# Usage

	metrics.RecordDBQuery("duckdb", "insert", time.Since(start), err)
	metrics.RecordVisit(event.DeviceType, time.Since(start))
*/
package metrics
