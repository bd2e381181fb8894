// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package middleware provides HTTP middleware shared by every Waypost route.
//
//   - RequestID: X-Request-ID propagation plus request and correlation IDs
//     in the logging context, so logging.Ctx(r.Context()) tags every line.
//   - PrometheusMetrics: request totals, latency histogram and in-flight
//     gauge, labelled by chi route pattern.
//
// Both are standard func(http.Handler) http.Handler middleware for chi's
// r.Use. CORS, rate limiting and body limits live in the api package next
// to the routes they protect.
package middleware
