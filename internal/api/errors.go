// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/waypost/internal/store"
	"github.com/tomtom215/waypost/internal/validation"
)

// Collector error messages. They are part of the public contract with the
// tracking snippet.
const (
	msgInvalidJSON        = "invalid JSON body"
	msgBodyTooLarge       = "request body too large"
	msgStorageUnavailable = "storage unavailable"
	msgInternal           = "internal error"
	msgRateLimited        = "rate limit exceeded"
)

// ErrHubUnavailable is reported when live dashboards are not wired.
var ErrHubUnavailable = errors.New("live dashboard service unavailable")

// respondDomainError maps the typed errors from validation and store onto
// the envelope used by dashboard routes.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	rw := NewResponseWriter(w, r)

	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		rw.ValidationError(verr)
		return
	}
	var serr *store.StorageError
	if errors.As(err, &serr) {
		rw.StorageError(err)
		return
	}
	rw.StorageError(&store.StorageError{Op: "query", Err: err})
}
