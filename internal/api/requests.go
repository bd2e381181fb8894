// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Request structs for the dashboard read endpoints, validated with
// go-playground/validator tags. Field names in errors come from the query
// tag, so a bad range reads "range must be one of 1h, 24h, 7d, 30d".
//
// Example usage:
//
//	q, verr := parseStatsQuery(r)
//	if verr != nil {
//	    NewResponseWriter(w, r).ValidationError(verr)
//	    return
//	}
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/waypost/internal/aggregate"
	"github.com/tomtom215/waypost/internal/models"
	"github.com/tomtom215/waypost/internal/validation"
)

// Limits for the visits list endpoint.
const (
	DefaultVisitsLimit = 20
	MaxVisitsLimit     = 500
)

// StatsQuery holds the parameters of GET /trackers/{trackerID}/stats.
//
// Fields:
//   - TrackerID: path parameter, required
//   - Range: 1h, 24h, 7d or 30d (default from LIVE_DEFAULT_WINDOW)
//   - Top: size of the top pages and top referrers lists (1-50)
type StatsQuery struct {
	TrackerID string `query:"tracker_id" validate:"notblank,nocontrol,max=256"`
	Range     string `query:"range" validate:"window"`
	Top       int    `query:"top" validate:"omitempty,min=1,max=50"`
}

// VisitsQuery holds the parameters of GET /trackers/{trackerID}/visits.
type VisitsQuery struct {
	TrackerID string `query:"tracker_id" validate:"notblank,nocontrol,max=256"`
	Range     string `query:"range" validate:"window"`
	Limit     int    `query:"limit" validate:"min=1,max=500"`
}

// BreakdownQuery holds the parameters of GET /trackers/{trackerID}/breakdown/{field}.
type BreakdownQuery struct {
	TrackerID string `query:"tracker_id" validate:"notblank,nocontrol,max=256"`
	Range     string `query:"range" validate:"window"`
	Field     string `query:"field" validate:"oneof=device device_type browser os country"`
}

// OnlineQuery holds the parameters of GET /trackers/{trackerID}/online.
type OnlineQuery struct {
	TrackerID string `query:"tracker_id" validate:"notblank,nocontrol,max=256"`
}

// window resolves the validated range, falling back to def when absent.
func window(raw string, def models.Window) models.Window {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	w, err := models.ParseWindow(raw)
	if err != nil {
		return def
	}
	return w
}

func trackerParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "trackerID"))
}

// intParam parses an optional integer query parameter. An empty value
// yields def; a non-numeric value is a validation error.
func intParam(r *http.Request, key string, def int) (int, *validation.RequestValidationError) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validation.NewRequestValidationError(key, "numeric", key+" must be a whole number")
	}
	return n, nil
}

func parseStatsQuery(r *http.Request) (StatsQuery, *validation.RequestValidationError) {
	top, verr := intParam(r, "top", 0)
	if verr != nil {
		return StatsQuery{}, verr
	}
	q := StatsQuery{
		TrackerID: trackerParam(r),
		Range:     r.URL.Query().Get("range"),
		Top:       top,
	}
	return q, validation.ValidateStruct(&q)
}

func parseVisitsQuery(r *http.Request) (VisitsQuery, *validation.RequestValidationError) {
	limit, verr := intParam(r, "limit", DefaultVisitsLimit)
	if verr != nil {
		return VisitsQuery{}, verr
	}
	q := VisitsQuery{
		TrackerID: trackerParam(r),
		Range:     r.URL.Query().Get("range"),
		Limit:     limit,
	}
	return q, validation.ValidateStruct(&q)
}

func parseBreakdownQuery(r *http.Request) (BreakdownQuery, aggregate.Field, *validation.RequestValidationError) {
	q := BreakdownQuery{
		TrackerID: trackerParam(r),
		Range:     r.URL.Query().Get("range"),
		Field:     strings.ToLower(chi.URLParam(r, "field")),
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		return q, "", verr
	}
	field, err := aggregate.ParseField(q.Field)
	if err != nil {
		return q, "", validation.NewRequestValidationError("field", "oneof", err.Error())
	}
	return q, field, nil
}

func parseOnlineQuery(r *http.Request) (OnlineQuery, *validation.RequestValidationError) {
	q := OnlineQuery{TrackerID: trackerParam(r)}
	return q, validation.ValidateStruct(&q)
}
