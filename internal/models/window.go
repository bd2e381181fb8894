// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package models

import (
	"fmt"
	"strings"
	"time"
)

// Window is a relative time range selected on a dashboard.
type Window string

const (
	WindowHour  Window = "1h"
	WindowDay   Window = "24h"
	WindowWeek  Window = "7d"
	WindowMonth Window = "30d"
)

// DefaultWindow is used when a request does not name one.
const DefaultWindow = WindowDay

var windowDurations = map[Window]time.Duration{
	WindowHour:  time.Hour,
	WindowDay:   24 * time.Hour,
	WindowWeek:  7 * 24 * time.Hour,
	WindowMonth: 30 * 24 * time.Hour,
}

// ParseWindow accepts "1h", "24h", "7d", "30d" (case-insensitive) and the
// aliases "day", "week" and "month". An empty string yields DefaultWindow.
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultWindow, nil
	case "1h", "hour":
		return WindowHour, nil
	case "24h", "1d", "day":
		return WindowDay, nil
	case "7d", "week":
		return WindowWeek, nil
	case "30d", "month":
		return WindowMonth, nil
	}
	return "", fmt.Errorf("unknown range %q: expected one of 1h, 24h, 7d, 30d", s)
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	if d, ok := windowDurations[w]; ok {
		return d
	}
	return windowDurations[DefaultWindow]
}

// Start returns the absolute window start relative to now.
func (w Window) Start(now time.Time) time.Time {
	return now.Add(-w.Duration())
}
