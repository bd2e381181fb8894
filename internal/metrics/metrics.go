// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Metrics
	VisitsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_visits_recorded_total",
			Help: "Total number of visit events stored, by device type",
		},
		[]string{"device_type"},
	)

	IngestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_ingest_failures_total",
			Help: "Total number of rejected or failed collector requests",
		},
		[]string{"reason"}, // "validation", "storage", "decode"
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waypost_ingest_duration_seconds",
			Help:    "Duration of collector requests from decode to store acknowledgement",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Store Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waypost_store_query_duration_seconds",
			Help:    "Duration of visit store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StoreUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waypost_store_up",
			Help: "Whether the last store health ping succeeded (1) or failed (0)",
		},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_store_query_errors_total",
			Help: "Total number of visit store errors",
		},
		[]string{"backend", "operation"},
	)

	// Event Bus Metrics
	BusMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_bus_messages_published_total",
			Help: "Total number of visit events published on the event bus",
		},
		[]string{"transport", "result"}, // result: "success", "failure"
	)

	BusMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_bus_messages_consumed_total",
			Help: "Total number of visit events consumed from the event bus",
		},
		[]string{"result"}, // "delivered", "parse_failed"
	)

	// Live Sync Metrics
	LiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waypost_live_subscriptions",
			Help: "Current number of live event subscriptions",
		},
	)

	LiveEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waypost_live_events_dropped_total",
			Help: "Live events dropped because a subscriber was not keeping up",
		},
	)

	LiveFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waypost_live_fetch_duration_seconds",
			Help:    "Duration of dashboard window fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"}, // "success", "error", "stale"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypost_cache_misses_total",
			Help: "Total number of response cache misses",
		},
		[]string{"cache"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordDBQuery records a store operation.
func RecordDBQuery(backend, operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements active request counter
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordVisit counts a stored visit.
func RecordVisit(deviceType string, duration time.Duration) {
	VisitsRecorded.WithLabelValues(deviceType).Inc()
	IngestDuration.Observe(duration.Seconds())
}

// RecordIngestFailure counts a rejected or failed collector request.
func RecordIngestFailure(reason string) {
	IngestFailures.WithLabelValues(reason).Inc()
}

// RecordBusPublish counts a publish attempt on the event bus.
func RecordBusPublish(transport string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	BusMessagesPublished.WithLabelValues(transport, result).Inc()
}

// RecordBusConsume counts a consumed bus message.
func RecordBusConsume(delivered bool) {
	result := "delivered"
	if !delivered {
		result = "parse_failed"
	}
	BusMessagesConsumed.WithLabelValues(result).Inc()
}

// RecordLiveFetch records a dashboard fetch outcome.
func RecordLiveFetch(result string, duration time.Duration) {
	LiveFetchDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordBreakerTransition updates breaker gauges on a state change.
// States follow gobreaker's numbering: 0 closed, 1 half-open, 2 open.
func RecordBreakerTransition(name, from, to string, state int) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordBreakerRequest counts a call made through a circuit breaker.
func RecordBreakerRequest(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}
