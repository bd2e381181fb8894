// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

/*
Package models defines the data structures shared across Waypost.

  - VisitEvent: one recorded page view, immutable after creation
  - Tracker: the external namespace a visit belongs to (read-only here)
  - Window: relative dashboard time range (1h, 24h, 7d, 30d)
  - Summary, PageCount, CategoryCount: aggregate view results
  - OnlineStatus: active-now payload for the online endpoint

The sentinel constants (UnknownIP, UnknownDevice, Unknown, DirectReferrer,
DefaultDevice) are the only values written when request data is missing.
*/
package models
