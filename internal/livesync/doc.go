// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package livesync keeps open dashboards current as visits arrive.
//
// A Bridge consumes the event bus and hands every visit to a Broker, which
// fans it out to subscriptions filtered by tracker ID. Each Dashboard runs
// one event loop that owns its selection, subscription and event list:
//
//	broker := livesync.NewBroker(0)
//	dash := livesync.NewDashboard(broker, store, livesync.Options{})
//	go dash.Run(ctx)
//	_ = dash.Select(ctx, "tracker-1", models.WindowDay)
//	for snap := range dash.Updates() {
//		render(snap)
//	}
//
// Selecting a new tracker or window cancels the previous subscription before
// the new one is created, so events for the old tracker can never reach the
// new view. Fetch results carry a generation number and superseded ones are
// discarded. Live events are deduplicated by ID and prepended; a ticker
// recomputes the active-now count without touching the store.
package livesync
