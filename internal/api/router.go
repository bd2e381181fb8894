// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/waypost/internal/middleware"
)

// Router sets up HTTP routes using the Chi router.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router for handler. A nil mw uses
// DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi configures all HTTP routes.
//
// Routes:
//
//	POST    /api/track                                   public collector (CORS *)
//	OPTIONS /api/track                                   preflight
//	GET     /api/v1/trackers/{trackerID}/online          active-now count (CORS *)
//	GET     /api/v1/trackers/{trackerID}/stats           full summary
//	GET     /api/v1/trackers/{trackerID}/visits          recent visits
//	GET     /api/v1/trackers/{trackerID}/breakdown/{field}
//	GET     /api/v1/live                                 live dashboard WebSocket
//	GET     /health/live, /health/ready                  probes
//	GET     /metrics                                     Prometheus
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()
	mw := router.chiMiddleware

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	// ========================
	// Collector
	// ========================
	// Called from arbitrary customer sites, so CORS is open and the
	// limiter is the only guard. The route recovers inside OpenCORS so a
	// 500 from a panic still carries Access-Control-Allow-Origin.
	r.Route("/api/track", func(r chi.Router) {
		r.Use(OpenCORS(http.MethodPost, http.MethodOptions))
		r.Use(chimiddleware.Recoverer)
		r.Use(mw.RateLimitCollector())
		r.Post("/", router.handler.Track)
		r.Options("/", preflight)
	})

	// ========================
	// Dashboard Read Endpoints
	// ========================
	readLimit := mw.RateLimit()
	r.Route("/api/v1/trackers/{trackerID}", func(r chi.Router) {
		r.Use(APISecurityHeaders())

		// Embeddable "N online" widgets poll this from customer sites.
		r.Group(func(r chi.Router) {
			r.Use(OpenCORS(http.MethodGet, http.MethodOptions))
			r.Use(readLimit)
			r.Get("/online", router.handler.Online)
			r.Options("/online", preflight)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.CORS())
			r.Use(readLimit)
			r.Get("/stats", router.handler.Stats)
			r.Get("/visits", router.handler.Visits)
			r.Get("/breakdown/{field}", router.handler.Breakdown)
			r.Options("/*", preflight)
		})
	})

	r.With(mw.RateLimitWebSocket()).Get("/api/v1/live", router.handler.LiveWebSocket)

	// ========================
	// Health & Observability
	// ========================
	r.Route("/health", func(r chi.Router) {
		r.Use(mw.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, r, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return r
}

// preflight answers CORS preflight requests that reach a route. The CORS
// middleware has already written the headers.
func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
