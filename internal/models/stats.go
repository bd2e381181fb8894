// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package models

import "time"

// CategoryCount is a generic (name, count) pair used by referrer and
// categorical breakdowns.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// PageCount is a hit count for one URL path.
type PageCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Summary holds every aggregate view for one tracker over one window.
type Summary struct {
	TrackerID        string          `json:"tracker_id"`
	Window           Window          `json:"window"`
	WindowStart      time.Time       `json:"window_start"`
	ActiveNow        int             `json:"active_now"`
	Total            int             `json:"total"`
	TopPages         []PageCount     `json:"top_pages"`
	ReferrerSources  []CategoryCount `json:"referrer_sources"`
	TopReferrers     []CategoryCount `json:"top_referrers"`
	Devices          []CategoryCount `json:"devices"`
	Browsers         []CategoryCount `json:"browsers"`
	OperatingSystems []CategoryCount `json:"operating_systems"`
	Countries        []CategoryCount `json:"countries"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// OnlineStatus is the payload of the online-now endpoint.
type OnlineStatus struct {
	OnlineUsers int    `json:"online_users"`
	Status      string `json:"status"`
	TrackerID   string `json:"tracker_id"`
}
