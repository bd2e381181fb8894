// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package websocket serves live dashboards over gorilla/websocket.
//
// Every connection gets a Client that owns one livesync.Dashboard. The
// browser picks what to watch and the server streams snapshots back:
//
//	→ {"type":"select","tracker_id":"abc","range":"7d"}
//	← {"type":"snapshot","data":{"tracker_id":"abc","range":"7d","summary":{...},"recent":[...]}}
//	← {"type":"error","data":{"message":"..."}}
//	→ {"type":"ping"}   ← {"type":"pong"}
//
// Select messages are rate limited per client with golang.org/x/time/rate.
// The server also sends websocket-level pings every 54s and drops clients
// that miss the 60s pong deadline.
//
// The Hub tracks clients for metrics and shutdown. It runs under the
// supervisor via RunWithContext; when its context ends every client is
// closed, which cancels its dashboard and subscription.
package websocket
