// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

/*
Package cache provides a thread-safe in-memory TTL cache.

The API layer uses it to reuse summary and breakdown responses for a short
period (AGGREGATE_CACHE_TTL, 2s by default) so that a burst of dashboard
loads for the same tracker does not re-read the whole window from the store
each time. Live dashboards never read through the cache.

# Usage

	summaries := cache.New("summary", 2*time.Second)
	defer summaries.Close()

	key := cache.GenerateKey("summary", params)
	if v, ok := summaries.Get(key); ok {
	    return v.(models.Summary)
	}
	s := compute()
	summaries.Set(key, s)

A cache created with a zero TTL is disabled: Set is a no-op and Get always
misses. Expired entries are dropped lazily on Get and by a background sweep
that stops on Close.

Hits and misses are exported as waypost_cache_hits_total and
waypost_cache_misses_total, labeled by cache name.
*/
package cache
