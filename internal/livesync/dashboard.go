// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package livesync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/waypost/internal/aggregate"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

// Defaults applied by NewDashboard for zero Options fields.
const (
	DefaultTickInterval = time.Second
	DefaultRecentLimit  = 20
	DefaultFetchTimeout = 10 * time.Second
)

var (
	// ErrClosed is returned by Select after Close.
	ErrClosed = errors.New("dashboard closed")
	// ErrTrackerRequired is returned by Select for a blank tracker ID.
	ErrTrackerRequired = errors.New("tracker_id is required")
)

// Fetcher loads the stored events of one tracker. store.Store satisfies it.
type Fetcher interface {
	ListSince(ctx context.Context, trackerID string, since time.Time, limit int) ([]models.VisitEvent, error)
}

// Options tunes a Dashboard.
type Options struct {
	TickInterval time.Duration
	RecentLimit  int
	FetchTimeout time.Duration
	TopN         int
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Snapshot is one rendered dashboard state.
type Snapshot struct {
	TrackerID   string              `json:"tracker_id"`
	Window      models.Window       `json:"range"`
	Summary     models.Summary      `json:"summary"`
	Recent      []models.VisitEvent `json:"recent"`
	GeneratedAt time.Time           `json:"generated_at"`
	Error       string              `json:"error,omitempty"`
}

type selection struct {
	trackerID string
	window    models.Window
}

type fetchResult struct {
	generation uint64
	events     []models.VisitEvent
	err        error
	took       time.Duration
}

// Dashboard is one open live dashboard. All mutable state is owned by the
// goroutine running Run; other methods only send it commands.
type Dashboard struct {
	broker  *Broker
	fetcher Fetcher
	opts    Options
	logger  zerolog.Logger

	selects chan selection
	fetched chan fetchResult
	updates chan Snapshot

	done      chan struct{}
	closeOnce sync.Once
}

// NewDashboard creates a dashboard. Call Run to start it and Select to pick
// a tracker.
func NewDashboard(broker *Broker, fetcher Fetcher, opts Options) *Dashboard {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultRecentLimit
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dashboard{
		broker:  broker,
		fetcher: fetcher,
		opts:    opts,
		logger:  logging.WithComponent("dashboard"),
		selects: make(chan selection),
		fetched: make(chan fetchResult, 1),
		updates: make(chan Snapshot, 1),
		done:    make(chan struct{}),
	}
}

// Updates delivers snapshots. Only the latest unread snapshot is kept; the
// channel is closed when Run returns.
func (d *Dashboard) Updates() <-chan Snapshot {
	return d.updates
}

// Select switches the dashboard to trackerID over window.
func (d *Dashboard) Select(ctx context.Context, trackerID string, window models.Window) error {
	trackerID = strings.TrimSpace(trackerID)
	if trackerID == "" {
		return ErrTrackerRequired
	}
	if window == "" {
		window = models.DefaultWindow
	}
	select {
	case d.selects <- selection{trackerID: trackerID, window: window}:
		return nil
	case <-d.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops Run. It is safe to call more than once.
func (d *Dashboard) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

// sessionState is owned by Run.
type sessionState struct {
	current     selection
	sub         *Subscription
	generation  uint64
	fetchCancel context.CancelFunc
	loading     bool
	failed      string
	events      []models.VisitEvent
	seen        map[string]struct{}
	pending     []models.VisitEvent
	activeNow   int
}

// Run processes selections, live events, fetch results and ticks until ctx
// is canceled or Close is called.
func (d *Dashboard) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &sessionState{}
	defer func() {
		if st.sub != nil {
			st.sub.Cancel()
		}
		if st.fetchCancel != nil {
			st.fetchCancel()
		}
		close(d.updates)
	}()

	ticker := time.NewTicker(d.opts.TickInterval)
	defer ticker.Stop()

	for {
		var live <-chan models.VisitEvent
		if st.sub != nil {
			live = st.sub.C()
		}

		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return

		case sel := <-d.selects:
			d.applySelection(ctx, st, sel)

		case res := <-d.fetched:
			d.applyFetch(st, res)

		case e, ok := <-live:
			if !ok {
				st.sub = nil
				continue
			}
			d.applyLive(st, e)

		case <-ticker.C:
			d.applyTick(st)
		}
	}
}

func (d *Dashboard) applySelection(ctx context.Context, st *sessionState, sel selection) {
	if st.sub != nil {
		st.sub.Cancel()
	}
	if st.fetchCancel != nil {
		st.fetchCancel()
	}
	st.current = sel
	st.generation++
	st.sub = d.broker.Subscribe(Filter{TrackerID: sel.trackerID})
	st.loading = true
	st.failed = ""
	st.events = nil
	st.seen = make(map[string]struct{})
	st.pending = nil
	st.activeNow = 0

	d.logger.Debug().
		Str("tracker_id", sel.trackerID).
		Str("range", string(sel.window)).
		Uint64("generation", st.generation).
		Msg("Dashboard selection changed")

	fetchCtx, cancel := context.WithCancel(ctx)
	st.fetchCancel = cancel
	go d.fetch(fetchCtx, st.generation, sel, d.opts.Now())
}

func (d *Dashboard) fetch(ctx context.Context, generation uint64, sel selection, now time.Time) {
	fetchCtx, cancel := context.WithTimeout(ctx, d.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	events, err := d.fetcher.ListSince(fetchCtx, sel.trackerID, sel.window.Start(now), 0)
	res := fetchResult{generation: generation, events: events, err: err, took: time.Since(start)}

	// A superseded fetch has its context canceled, so it never blocks
	// behind a newer one.
	select {
	case d.fetched <- res:
	case <-ctx.Done():
	case <-d.done:
	}
}

func (d *Dashboard) applyFetch(st *sessionState, res fetchResult) {
	if res.generation != st.generation {
		metrics.RecordLiveFetch("stale", res.took)
		return
	}
	st.loading = false
	st.fetchCancel()
	st.fetchCancel = nil

	if res.err != nil {
		metrics.RecordLiveFetch("error", res.took)
		d.logger.Warn().Err(res.err).
			Str("tracker_id", st.current.trackerID).
			Msg("Dashboard fetch failed")
		st.failed = "failed to load visits"
		st.events = nil
		st.pending = nil
		d.emit(st)
		return
	}
	metrics.RecordLiveFetch("ok", res.took)

	st.events = make([]models.VisitEvent, 0, len(res.events)+len(st.pending))
	for _, e := range res.events {
		if _, dup := st.seen[e.ID]; dup {
			continue
		}
		st.seen[e.ID] = struct{}{}
		st.events = append(st.events, e)
	}
	for _, e := range st.pending {
		d.prepend(st, e)
	}
	st.pending = nil
	d.emit(st)
}

func (d *Dashboard) applyLive(st *sessionState, e models.VisitEvent) {
	if e.TrackerID != st.current.trackerID {
		return
	}
	if st.loading {
		st.pending = append(st.pending, e)
		return
	}
	if st.failed != "" {
		return
	}
	if d.prepend(st, e) {
		d.emit(st)
	}
}

// prepend adds e to the front of the event list unless its ID was seen.
func (d *Dashboard) prepend(st *sessionState, e models.VisitEvent) bool {
	if _, dup := st.seen[e.ID]; dup {
		return false
	}
	st.seen[e.ID] = struct{}{}
	st.events = append(st.events, models.VisitEvent{})
	copy(st.events[1:], st.events)
	st.events[0] = e
	return true
}

func (d *Dashboard) applyTick(st *sessionState) {
	if st.sub == nil || st.loading || st.failed != "" {
		return
	}
	now := d.opts.Now()
	expired := d.expire(st, now)
	if expired || aggregate.ActiveNow(st.events, now) != st.activeNow {
		d.emit(st)
	}
}

// expire drops events at or before the window start, matching the strictly
// after bound of the initial fetch. The list is newest first, so the
// expired events form its tail.
func (d *Dashboard) expire(st *sessionState, now time.Time) bool {
	start := st.current.window.Start(now)
	cut := len(st.events)
	for cut > 0 && !st.events[cut-1].CreatedAt.After(start) {
		cut--
	}
	if cut == len(st.events) {
		return false
	}
	for _, e := range st.events[cut:] {
		delete(st.seen, e.ID)
	}
	clear(st.events[cut:])
	st.events = st.events[:cut]
	return true
}

func (d *Dashboard) snapshot(st *sessionState) Snapshot {
	now := d.opts.Now()
	d.expire(st, now)
	summary := aggregate.Summarize(st.events, now, aggregate.Options{TopN: d.opts.TopN})
	summary.TrackerID = st.current.trackerID
	summary.Window = st.current.window
	summary.WindowStart = st.current.window.Start(now)
	st.activeNow = summary.ActiveNow

	n := min(len(st.events), d.opts.RecentLimit)
	recent := make([]models.VisitEvent, n)
	copy(recent, st.events[:n])

	return Snapshot{
		TrackerID:   st.current.trackerID,
		Window:      st.current.window,
		Summary:     summary,
		Recent:      recent,
		GeneratedAt: now,
		Error:       st.failed,
	}
}

// emit replaces any unread snapshot with the current one. Run is the only
// sender, so the second send cannot block.
func (d *Dashboard) emit(st *sessionState) {
	s := d.snapshot(st)
	select {
	case d.updates <- s:
	default:
		select {
		case <-d.updates:
		default:
		}
		d.updates <- s
	}
}
