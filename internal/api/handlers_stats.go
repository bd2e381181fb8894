// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"net/http"

	"github.com/tomtom215/waypost/internal/cache"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/models"
)

// onlineStatusActive is the fixed status string of the online endpoint.
const onlineStatusActive = "active"

func (h *Handler) defaultWindow() models.Window {
	return window(h.config.Live.DefaultWindow, models.DefaultWindow)
}

// Stats returns every aggregate view for one tracker over a window.
//
// Query parameters:
//   - range: 1h, 24h, 7d, 30d
//   - top: size of the top pages and top referrers lists
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	q, verr := parseStatsQuery(r)
	if verr != nil {
		NewResponseWriter(w, r).ValidationError(verr)
		return
	}
	win := window(q.Range, h.defaultWindow())

	key := cache.GenerateKey("summary", []interface{}{q.TrackerID, win, q.Top})
	if cached, ok := h.responses.Get(key); ok {
		WriteSuccess(w, r, cached)
		return
	}

	summary, err := h.engine.Summary(r.Context(), q.TrackerID, win, q.Top)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.responses.Set(key, summary)
	WriteSuccess(w, r, summary)
}

// Visits returns the most recent visits in a window, newest first.
//
// Query parameters:
//   - range: 1h, 24h, 7d, 30d
//   - limit: 1-500, default 20
func (h *Handler) Visits(w http.ResponseWriter, r *http.Request) {
	q, verr := parseVisitsQuery(r)
	if verr != nil {
		NewResponseWriter(w, r).ValidationError(verr)
		return
	}
	win := window(q.Range, h.defaultWindow())

	// One extra row tells us whether the list was truncated.
	events, err := h.engine.Recent(r.Context(), q.TrackerID, win, q.Limit+1)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	hasMore := len(events) > q.Limit
	if hasMore {
		events = events[:q.Limit]
	}
	if events == nil {
		events = []models.VisitEvent{}
	}

	NewResponseWriter(w, r).SuccessWithMeta(events, &APIMeta{
		Pagination: &PaginationMeta{Count: len(events), Limit: q.Limit, HasMore: hasMore},
	})
}

// Breakdown counts one categorical field (device, browser, os, country)
// over a window.
func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	q, field, verr := parseBreakdownQuery(r)
	if verr != nil {
		NewResponseWriter(w, r).ValidationError(verr)
		return
	}
	win := window(q.Range, h.defaultWindow())

	key := cache.GenerateKey("breakdown", []interface{}{q.TrackerID, win, field})
	if cached, ok := h.responses.Get(key); ok {
		WriteSuccess(w, r, cached)
		return
	}

	counts, err := h.engine.Breakdown(r.Context(), q.TrackerID, win, field)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if counts == nil {
		counts = []models.CategoryCount{}
	}
	h.responses.Set(key, counts)
	WriteSuccess(w, r, counts)
}

// Online returns the active-now count in the flat shape embeddable
// widgets expect: {"online_users":N,"status":"active","tracker_id":"…"}.
// It is not cached.
func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	q, verr := parseOnlineQuery(r)
	if verr != nil {
		writeTrackResponse(w, http.StatusBadRequest, TrackResponse{Error: verr.Error()})
		return
	}

	n, err := h.engine.Online(r.Context(), q.TrackerID)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("tracker_id", sanitizeLogValue(q.TrackerID)).Msg("Online count failed")
		writeTrackResponse(w, http.StatusInternalServerError, TrackResponse{Error: msgStorageUnavailable})
		return
	}

	writeJSON(w, http.StatusOK, models.OnlineStatus{
		OnlineUsers: n,
		Status:      onlineStatusActive,
		TrackerID:   q.TrackerID,
	})
}

