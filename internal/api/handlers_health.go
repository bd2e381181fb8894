// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"context"
	"net/http"
	"time"
)

// readinessTimeout bounds the store ping of the readiness probe.
const readinessTimeout = 2 * time.Second

// HealthStatus is the payload of the health endpoints.
type HealthStatus struct {
	Status         string  `json:"status"`
	StoreBackend   string  `json:"store_backend,omitempty"`
	StoreConnected bool    `json:"store_connected"`
	LiveClients    int     `json:"live_clients"`
	Uptime         float64 `json:"uptime"`
}

// HealthLive handles liveness probe requests.
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests.
// Returns 200 only if the store answers a ping, 503 otherwise.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	connected := h.store != nil && h.store.Ping(ctx) == nil

	status := HealthStatus{
		Status:         "ready",
		StoreBackend:   h.config.Store.Backend,
		StoreConnected: connected,
		Uptime:         time.Since(h.startTime).Seconds(),
	}
	if h.wsHub != nil {
		status.LiveClients = h.wsHub.GetClientCount()
	}

	if !connected {
		status.Status = "not_ready"
		NewResponseWriter(w, r).ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "store unavailable", status)
		return
	}
	WriteSuccess(w, r, status)
}
