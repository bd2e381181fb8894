// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waypost/internal/ingest"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/store"
	"github.com/tomtom215/waypost/internal/validation"
)

// DefaultMaxBodyBytes caps the collector body when the server config
// leaves it unset.
const DefaultMaxBodyBytes int64 = 16 << 10

// TrackResponse is the flat body returned to the tracking snippet.
type TrackResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func writeTrackResponse(w http.ResponseWriter, status int, resp TrackResponse) {
	writeJSON(w, status, resp)
}

// Track records one page view sent by the tracking snippet.
//
// Responses:
//   - 200 {"success":true}
//   - 400 {"success":false,"error":"tracker_id is required"}
//   - 400 {"success":false,"error":"invalid JSON body"}
//   - 413 {"success":false,"error":"request body too large"}
//   - 500 {"success":false,"error":"storage unavailable"}
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	limit := h.config.Server.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body := http.MaxBytesReader(w, r.Body, limit)

	raw, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.RecordIngestFailure("too_large")
			writeTrackResponse(w, http.StatusRequestEntityTooLarge, TrackResponse{Error: msgBodyTooLarge})
			return
		}
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to read collector body")
		metrics.RecordIngestFailure("decode")
		writeTrackResponse(w, http.StatusBadRequest, TrackResponse{Error: msgInvalidJSON})
		return
	}

	var req ingest.TrackRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		metrics.RecordIngestFailure("decode")
		writeTrackResponse(w, http.StatusBadRequest, TrackResponse{Error: msgInvalidJSON})
		return
	}

	if _, err := h.recorder.Record(r.Context(), req, r.Header); err != nil {
		h.writeTrackError(w, r, err)
		return
	}

	writeTrackResponse(w, http.StatusOK, TrackResponse{Success: true})
}

// writeTrackError maps Recorder errors onto the collector contract. The
// Recorder already logged and counted them.
func (h *Handler) writeTrackError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		writeTrackResponse(w, http.StatusBadRequest, TrackResponse{Error: verr.Error()})
		return
	}

	var serr *store.StorageError
	if errors.As(err, &serr) {
		writeTrackResponse(w, http.StatusInternalServerError, TrackResponse{Error: msgStorageUnavailable})
		return
	}

	logging.Ctx(r.Context()).Error().Err(err).Msg("Unexpected collector error")
	writeTrackResponse(w, http.StatusInternalServerError, TrackResponse{Error: msgInternal})
}
