// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/waypost/internal/aggregate"
	"github.com/tomtom215/waypost/internal/cache"
	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/ingest"
	"github.com/tomtom215/waypost/internal/livesync"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/store"
	ws "github.com/tomtom215/waypost/internal/websocket"
)

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, shared helpers
//   - handlers_track.go: public collector
//   - handlers_stats.go: dashboard read endpoints
//   - handlers_live.go: live dashboard WebSocket upgrade
//   - handlers_health.go: liveness and readiness probes
type Handler struct {
	config    *config.Config
	store     store.Store
	recorder  *ingest.Recorder
	engine    *aggregate.Engine
	broker    *livesync.Broker
	wsHub     *ws.Hub
	responses *cache.Cache
	upgrader  websocket.Upgrader
	startTime time.Time
}

// Deps groups the collaborators a Handler needs. Broker and Hub may be nil,
// in which case the live endpoint reports 503.
type Deps struct {
	Store    store.Store
	Recorder *ingest.Recorder
	Engine   *aggregate.Engine
	Broker   *livesync.Broker
	Hub      *ws.Hub
}

// NewHandler creates a new API handler.
//
// Example:
//
//	handler := api.NewHandler(cfg, api.Deps{Store: s, Recorder: rec, Engine: eng, Broker: broker, Hub: hub})
//	router := api.NewRouter(handler, api.NewChiMiddlewareFromConfig(cfg.Security))
//	http.ListenAndServe(":3857", router.SetupChi())
func NewHandler(cfg *config.Config, deps Deps) *Handler {
	h := &Handler{
		config:    cfg,
		store:     deps.Store,
		recorder:  deps.Recorder,
		engine:    deps.Engine,
		broker:    deps.Broker,
		wsHub:     deps.Hub,
		responses: cache.New("aggregate", cfg.Aggregate.CacheTTL),
		startTime: time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.responses.Close()
}

// checkOrigin accepts same-origin upgrades, requests without an Origin
// header, and origins listed in CORS_ORIGINS. "*" allows any origin.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Str("origin", sanitizeLogValue(origin)).Msg("Rejected WebSocket upgrade with malformed Origin")
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}

	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}

	logging.Ctx(r.Context()).Warn().Str("origin", sanitizeLogValue(origin)).Msg("Rejected WebSocket upgrade from disallowed origin")
	return false
}

// sanitizeLogValue replaces control characters so client input cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
