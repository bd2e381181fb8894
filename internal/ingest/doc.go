// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package ingest records collector hits.
//
// Recorder.Record is the whole write path: validate the tracker ID, enrich
// the request headers, assign an ID and a server timestamp, insert exactly
// once, then announce the visit on the event bus. Calls are independent and
// not idempotent: two identical requests produce two visits.
package ingest
