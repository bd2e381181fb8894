// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"net/http"
	"strings"

	"github.com/tomtom215/waypost/internal/livesync"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
	"github.com/tomtom215/waypost/internal/validation"
	ws "github.com/tomtom215/waypost/internal/websocket"
)

// LiveWebSocket upgrades to a live dashboard session.
//
// Query parameters (both optional; the client can send a select message
// later):
//   - tracker_id: tracker to open immediately
//   - range: 1h, 24h, 7d, 30d
func (h *Handler) LiveWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil || h.broker == nil {
		NewResponseWriter(w, r).ServiceUnavailable(ErrHubUnavailable.Error())
		return
	}

	trackerID := strings.TrimSpace(r.URL.Query().Get("tracker_id"))
	rawRange := r.URL.Query().Get("range")
	win := h.defaultWindow()
	if strings.TrimSpace(rawRange) != "" {
		parsed, err := models.ParseWindow(rawRange)
		if err != nil {
			NewResponseWriter(w, r).ValidationError(
				validation.NewRequestValidationError("range", "window", "range must be one of 1h, 24h, 7d, 30d"))
			return
		}
		win = parsed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		metrics.WSErrors.WithLabelValues("upgrade").Inc()
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	dash := livesync.NewDashboard(h.broker, h.store, livesync.Options{
		TickInterval: h.config.Live.TickInterval,
		RecentLimit:  h.config.Live.RecentLimit,
		FetchTimeout: h.config.Live.FetchTimeout,
		TopN:         h.config.Aggregate.TopN,
	})

	client := ws.NewClient(h.wsHub, conn, dash)
	if !client.Serve(trackerID, win) {
		logging.Ctx(r.Context()).Info().Msg("WebSocket rejected, hub is shutting down")
		return
	}

	logging.Ctx(r.Context()).Debug().
		Uint64("client_id", client.ID()).
		Str("tracker_id", sanitizeLogValue(trackerID)).
		Str("range", string(win)).
		Msg("Live dashboard connected")
}
