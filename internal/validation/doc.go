// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package validation provides struct validation using go-playground/validator v10.
//
// It wraps a thread-safe singleton validator with three custom tags and
// messages that use the JSON field name:
//
//   - notblank: string must contain something other than whitespace
//   - nocontrol: string must not contain control characters such as NUL
//   - window: string must parse with models.ParseWindow (empty allowed)
//
// # Quick Start
//
//	type TrackRequest struct {
//	    TrackerID string `json:"tracker_id" validate:"notblank,nocontrol,max=256"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    // apiErr.Message == "tracker_id is required"
//	}
//
// A *RequestValidationError is the ValidationError category of the API: the
// collector and the stats endpoints map it to HTTP 400.
package validation
