// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package services adapts Waypost components to suture.Service.
//
//   - HTTPServerService: ListenAndServe with graceful Shutdown
//   - WebSocketHubService: the live dashboard hub
//   - StoreHealthService: periodic store ping feeding waypost_store_up
//
// Each wrapper returns ctx.Err() on a requested stop so the supervisor does
// not count it as a failure.
package services
