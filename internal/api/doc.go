// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

/*
Package api provides the HTTP layer of Waypost.

Key Components:

  - Router: Chi route table and middleware stack
  - Handler: request handlers for the collector, dashboard reads, the live
    WebSocket and health probes
  - ChiMiddleware: go-chi/cors and go-chi/httprate factories built from
    config.SecurityConfig, plus OpenCORS for public routes
  - ResponseWriter: the {success, data, error, meta} envelope used by
    dashboard routes

# Collector

POST /api/track is called by the tracking snippet from any origin. Its
responses are flat rather than enveloped:

	200 {"success":true}
	400 {"success":false,"error":"tracker_id is required"}
	400 {"success":false,"error":"invalid JSON body"}
	413 {"success":false,"error":"request body too large"}
	429 {"success":false,"error":"rate limit exceeded"}
	500 {"success":false,"error":"storage unavailable"}

Every collector response, including OPTIONS preflight, carries
Access-Control-Allow-Origin: *. The body is capped at MAX_BODY_BYTES
(16 KiB by default). A request that reached the store is never retried
here; a retry by the snippet records a second visit.

# Dashboard Reads

	GET /api/v1/trackers/{trackerID}/stats?range=24h&top=5
	GET /api/v1/trackers/{trackerID}/visits?range=24h&limit=20
	GET /api/v1/trackers/{trackerID}/breakdown/{device|browser|os|country}?range=7d
	GET /api/v1/trackers/{trackerID}/online

range accepts 1h, 24h, 7d and 30d. Summary and breakdown results are reused
for AGGREGATE_CACHE_TTL. The online endpoint returns
{"online_users":N,"status":"active","tracker_id":"…"} with open CORS so it
can back embeddable widgets.

# Live Dashboards

GET /api/v1/live?tracker_id=…&range=… upgrades to a WebSocket driving one
livesync.Dashboard. See package websocket for the message protocol.

# Middleware Order

RequestID, RealIP, Recoverer and PrometheusMetrics run on every request.
Per-route groups then add CORS, rate limiting and security headers.
*/
package api
