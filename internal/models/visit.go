// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package models

import "time"

// Sentinel values written when a request carries no usable data for a field.
const (
	UnknownIP      = "Unknown IP"
	UnknownDevice  = "Unknown Device"
	Unknown        = "Unknown"
	DirectReferrer = "Direct"
	DefaultDevice  = "Desktop"
)

// VisitEvent is one recorded page view. It is written once by the ingestion
// path and never updated; CreatedAt is always assigned by the server.
type VisitEvent struct {
	ID         string    `json:"id"`
	TrackerID  string    `json:"tracker_id"`
	URL        string    `json:"url"`
	Referrer   string    `json:"referrer"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	Country    string    `json:"country"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	DeviceType string    `json:"device_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// Tracker is the namespace a VisitEvent belongs to. Trackers are owned by an
// external admin surface; Waypost only ever reads the ID.
type Tracker struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
