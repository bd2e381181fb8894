// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package aggregate derives dashboard views from a set of visit events.
//
// Every view is a pure function of its input slice: the slice is never
// modified, and calling a view twice on the same input yields identical
// output. Inputs are expected newest first, the order store.ListSince
// returns; first-seen tie breaks refer to that order.
package aggregate

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/waypost/internal/models"
)

// ActiveWindow is the trailing interval counted as "online now".
const ActiveWindow = 5 * time.Minute

// DefaultTopN is used when a caller passes n <= 0.
const DefaultTopN = 5

// ActiveNow counts events created strictly after now-ActiveWindow.
func ActiveNow(events []models.VisitEvent, now time.Time) int {
	cutoff := now.Add(-ActiveWindow)
	n := 0
	for i := range events {
		if events[i].CreatedAt.After(cutoff) {
			n++
		}
	}
	return n
}

// Total returns the size of the windowed set.
func Total(events []models.VisitEvent) int {
	return len(events)
}

// PagePath strips scheme and host from raw, keeping path, query and
// fragment. An empty path becomes "/". Strings that are not absolute URLs
// are treated as paths.
func PagePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "/"
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme == "" && u.Host == "") {
		if !strings.HasPrefix(raw, "/") {
			raw = "/" + raw
		}
		return raw
	}

	// RawPath is only set when the input's encoding differs from the
	// default one, e.g. "%2F" inside a segment or raw non-ASCII.
	path := u.Path
	if u.RawPath != "" {
		path = u.RawPath
	}
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" || u.ForceQuery {
		path += "?" + u.RawQuery
	}
	if i := strings.IndexByte(raw, '#'); i >= 0 && i < len(raw)-1 {
		path += raw[i:]
	}
	return path
}

// TopPages groups events by PagePath and returns the n most visited paths.
// Ties keep first-seen order.
func TopPages(events []models.VisitEvent, n int) []models.PageCount {
	counts := newCounter()
	for i := range events {
		counts.add(PagePath(events[i].URL))
	}

	ranked := counts.ranked(n)
	out := make([]models.PageCount, len(ranked))
	for i, c := range ranked {
		out[i] = models.PageCount{Path: c.Name, Count: c.Count}
	}
	return out
}

// TopReferrerDomains groups non-direct referrers by hostname and returns
// the n most frequent. A referrer that does not parse as an absolute URL is
// counted under its raw value.
func TopReferrerDomains(events []models.VisitEvent, n int) []models.CategoryCount {
	counts := newCounter()
	for i := range events {
		ref := strings.TrimSpace(events[i].Referrer)
		if isDirect(ref) {
			continue
		}
		counts.add(ReferrerDomain(ref))
	}
	return counts.ranked(n)
}

// ReferrerDomain returns the hostname of ref, or ref itself when it has none.
func ReferrerDomain(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return ref
}

// counter is an insertion-ordered tally.
type counter struct {
	index map[string]int
	items []models.CategoryCount
}

func newCounter() *counter {
	return &counter{index: make(map[string]int)}
}

func (c *counter) add(key string) {
	if i, ok := c.index[key]; ok {
		c.items[i].Count++
		return
	}
	c.index[key] = len(c.items)
	c.items = append(c.items, models.CategoryCount{Name: key, Count: 1})
}

// list returns counts in first-seen order.
func (c *counter) list() []models.CategoryCount {
	out := make([]models.CategoryCount, len(c.items))
	copy(out, c.items)
	return out
}

// ranked returns the n highest counts; the stable sort keeps first-seen
// order between equal counts.
func (c *counter) ranked(n int) []models.CategoryCount {
	if n <= 0 {
		n = DefaultTopN
	}
	out := c.list()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
