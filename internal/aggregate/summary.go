// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/waypost/internal/models"
)

// Options tunes Summarize.
type Options struct {
	// TopN bounds TopPages and TopReferrers. Zero means DefaultTopN.
	TopN int
}

// Summarize computes every view over events. The trackerID, window and
// windowStart fields are copied into the result untouched.
func Summarize(events []models.VisitEvent, now time.Time, opts Options) models.Summary {
	return models.Summary{
		ActiveNow:        ActiveNow(events, now),
		Total:            Total(events),
		TopPages:         TopPages(events, opts.TopN),
		ReferrerSources:  ReferrerSources(events),
		TopReferrers:     TopReferrerDomains(events, opts.TopN),
		Devices:          Breakdown(events, FieldDevice),
		Browsers:         Breakdown(events, FieldBrowser),
		OperatingSystems: Breakdown(events, FieldOS),
		Countries:        Breakdown(events, FieldCountry),
		GeneratedAt:      now,
	}
}

// Source is the read side of the store needed by the Engine.
type Source interface {
	ListSince(ctx context.Context, trackerID string, since time.Time, limit int) ([]models.VisitEvent, error)
	CountSince(ctx context.Context, trackerID string, since time.Time) (int, error)
}

// Engine answers windowed queries against an injected Source.
type Engine struct {
	source Source
	opts   Options
	now    func() time.Time
}

// NewEngine creates an Engine. now may be nil, in which case time.Now is used.
func NewEngine(source Source, opts Options, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{source: source, opts: opts, now: now}
}

// Summary fetches the window for trackerID and derives every view. topN
// overrides the engine default when positive.
func (e *Engine) Summary(ctx context.Context, trackerID string, window models.Window, topN int) (models.Summary, error) {
	now := e.now()
	start := window.Start(now)

	events, err := e.source.ListSince(ctx, trackerID, start, 0)
	if err != nil {
		return models.Summary{}, fmt.Errorf("list visits for %s: %w", trackerID, err)
	}

	opts := e.opts
	if topN > 0 {
		opts.TopN = topN
	}
	s := Summarize(events, now, opts)
	s.TrackerID = trackerID
	s.Window = window
	s.WindowStart = start
	return s, nil
}

// Recent returns at most limit events from the window, newest first.
func (e *Engine) Recent(ctx context.Context, trackerID string, window models.Window, limit int) ([]models.VisitEvent, error) {
	events, err := e.source.ListSince(ctx, trackerID, window.Start(e.now()), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent visits for %s: %w", trackerID, err)
	}
	return events, nil
}

// Online returns the active-now count for trackerID without loading the
// whole window.
func (e *Engine) Online(ctx context.Context, trackerID string) (int, error) {
	// CountSince is exclusive of its bound, matching ActiveNow.
	n, err := e.source.CountSince(ctx, trackerID, e.now().Add(-ActiveWindow))
	if err != nil {
		return 0, fmt.Errorf("count active visits for %s: %w", trackerID, err)
	}
	return n, nil
}

// Breakdown fetches the window and counts one categorical field.
func (e *Engine) Breakdown(ctx context.Context, trackerID string, window models.Window, field Field) ([]models.CategoryCount, error) {
	events, err := e.source.ListSince(ctx, trackerID, window.Start(e.now()), 0)
	if err != nil {
		return nil, fmt.Errorf("list visits for %s: %w", trackerID, err)
	}
	return Breakdown(events, field), nil
}
