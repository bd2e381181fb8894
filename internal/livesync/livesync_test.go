// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package livesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/waypost/internal/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func visit(id, tracker string, age time.Duration) models.VisitEvent {
	return models.VisitEvent{
		ID:         id,
		TrackerID:  tracker,
		URL:        "https://example.com/" + id,
		Referrer:   models.DirectReferrer,
		IP:         models.UnknownIP,
		UserAgent:  models.UnknownDevice,
		Country:    models.Unknown,
		Browser:    models.Unknown,
		OS:         models.Unknown,
		DeviceType: models.DefaultDevice,
		CreatedAt:  baseTime.Add(-age),
	}
}

// fakeFetcher serves canned events per tracker. A gate blocks a tracker's
// fetch until it is closed.
type fakeFetcher struct {
	mu     sync.Mutex
	events map[string][]models.VisitEvent
	gates  map[string]chan struct{}
	err    error
	calls  atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		events: make(map[string][]models.VisitEvent),
		gates:  make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) ListSince(ctx context.Context, trackerID string, since time.Time, _ int) ([]models.VisitEvent, error) {
	f.calls.Add(1)
	f.mu.Lock()
	gate := f.gates[trackerID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.VisitEvent
	for _, e := range f.events[trackerID] {
		if e.CreatedAt.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	broker  *Broker
	fetcher *fakeFetcher
	clock   *clock
	dash    *Dashboard
	cancel  context.CancelFunc
	stopped chan struct{}
}

func newHarness(t *testing.T, tick time.Duration) *harness {
	t.Helper()
	h := &harness{
		broker:  NewBroker(16),
		fetcher: newFakeFetcher(),
		clock:   &clock{now: baseTime},
		stopped: make(chan struct{}),
	}
	h.dash = NewDashboard(h.broker, h.fetcher, Options{
		TickInterval: tick,
		Now:          h.clock.Now,
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.dash.Run(ctx)
		close(h.stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.stopped
	})
	return h
}

func (h *harness) selectTracker(t *testing.T, tracker string, w models.Window) {
	t.Helper()
	if err := h.dash.Select(context.Background(), tracker, w); err != nil {
		t.Fatalf("Select(%s) error = %v", tracker, err)
	}
}

// waitFor returns the first snapshot satisfying ok.
func (h *harness) waitFor(t *testing.T, ok func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, open := <-h.dash.Updates():
			if !open {
				t.Fatal("updates channel closed")
			}
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func ids(events []models.VisitEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func equalIDs(got []models.VisitEvent, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func TestBrokerFiltersByTracker(t *testing.T) {
	b := NewBroker(4)
	t1 := b.Subscribe(Filter{TrackerID: "T1"})
	t2 := b.Subscribe(Filter{TrackerID: "T2"})
	defer t1.Cancel()
	defer t2.Cancel()

	if n := b.Deliver(visit("a", "T1", 0)); n != 1 {
		t.Fatalf("Deliver() = %d, want 1", n)
	}

	select {
	case e := <-t1.C():
		if e.ID != "a" {
			t.Errorf("T1 received %q", e.ID)
		}
	default:
		t.Error("T1 subscription should have the event")
	}
	select {
	case e := <-t2.C():
		t.Errorf("T2 subscription received %q", e.ID)
	default:
	}
}

func TestSubscriptionCancel(t *testing.T) {
	b := NewBroker(4)
	sub := b.Subscribe(Filter{TrackerID: "T1"})
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}

	sub.Cancel()
	sub.Cancel()

	if b.Len() != 0 {
		t.Errorf("Len() = %d after cancel, want 0", b.Len())
	}
	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed after Cancel")
	}
	if n := b.Deliver(visit("a", "T1", 0)); n != 0 {
		t.Errorf("Deliver() = %d after cancel, want 0", n)
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker(1)
	sub := b.Subscribe(Filter{TrackerID: "T1"})
	defer sub.Cancel()

	b.Deliver(visit("a", "T1", 0))
	if n := b.Deliver(visit("b", "T1", 0)); n != 0 {
		t.Errorf("Deliver() to full subscription = %d, want 0", n)
	}
	if sub.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", sub.Dropped())
	}
}

func TestBrokerClose(t *testing.T) {
	b := NewBroker(1)
	subs := []*Subscription{
		b.Subscribe(Filter{TrackerID: "T1"}),
		b.Subscribe(Filter{TrackerID: "T1"}),
		b.Subscribe(Filter{TrackerID: "T2"}),
	}
	b.Close()
	if b.Len() != 0 {
		t.Errorf("Len() = %d after Close, want 0", b.Len())
	}
	for _, s := range subs {
		if _, ok := <-s.C(); ok {
			t.Error("subscription channel should be closed")
		}
	}
}

type chanSubscriber struct {
	ch  chan *models.VisitEvent
	err error
}

func (c *chanSubscriber) SubscribeVisits(context.Context) (<-chan *models.VisitEvent, error) {
	return c.ch, c.err
}

func TestBridgeForwardsVisits(t *testing.T) {
	bus := &chanSubscriber{ch: make(chan *models.VisitEvent, 1)}
	broker := NewBroker(4)
	sub := broker.Subscribe(Filter{TrackerID: "T1"})
	defer sub.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewBridge(bus, broker).Serve(ctx) }()

	e := visit("a", "T1", 0)
	bus.ch <- &e

	select {
	case got := <-sub.C():
		if got.ID != "a" {
			t.Errorf("received %q, want a", got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not forward the visit")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestBridgeRestartsWhenBusCloses(t *testing.T) {
	bus := &chanSubscriber{ch: make(chan *models.VisitEvent)}
	close(bus.ch)

	err := NewBridge(bus, NewBroker(1)).Serve(context.Background())
	if !errors.Is(err, errSubscriptionClosed) {
		t.Errorf("Serve() = %v, want errSubscriptionClosed", err)
	}

	bus = &chanSubscriber{err: errors.New("bus down")}
	if err := NewBridge(bus, NewBroker(1)).Serve(context.Background()); err == nil {
		t.Error("Serve() should surface subscribe errors")
	}
}

func TestDashboardFetchThenLive(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.fetcher.events["T1"] = []models.VisitEvent{
		visit("e2", "T1", time.Minute),
		visit("e1", "T1", 2*time.Hour),
		visit("old", "T1", 48*time.Hour),
	}

	h.selectTracker(t, "T1", models.WindowDay)
	s := h.waitFor(t, func(s Snapshot) bool { return s.TrackerID == "T1" })
	if !equalIDs(s.Recent, "e2", "e1") {
		t.Fatalf("Recent = %v, want [e2 e1]", ids(s.Recent))
	}
	if s.Summary.Total != 2 || s.Summary.ActiveNow != 1 {
		t.Errorf("Summary total=%d active=%d, want 2 and 1", s.Summary.Total, s.Summary.ActiveNow)
	}
	if s.Window != models.WindowDay || s.Error != "" {
		t.Errorf("snapshot = %+v", s)
	}

	h.broker.Deliver(visit("e3", "T1", 0))
	s = h.waitFor(t, func(s Snapshot) bool { return len(s.Recent) == 3 })
	if !equalIDs(s.Recent, "e3", "e2", "e1") {
		t.Errorf("Recent = %v, want e3 prepended", ids(s.Recent))
	}

	// A duplicate ID is ignored; the next distinct event proves it.
	h.broker.Deliver(visit("e3", "T1", 0))
	h.broker.Deliver(visit("e4", "T1", 0))
	s = h.waitFor(t, func(s Snapshot) bool { return len(s.Recent) > 0 && s.Recent[0].ID == "e4" })
	if !equalIDs(s.Recent, "e4", "e3", "e2", "e1") {
		t.Errorf("Recent = %v, want duplicate e3 ignored", ids(s.Recent))
	}
}

func TestDashboardSwitchingTrackerTearsDownSubscription(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.fetcher.events["T1"] = []models.VisitEvent{visit("a", "T1", time.Minute)}
	h.fetcher.events["T2"] = []models.VisitEvent{visit("b", "T2", time.Minute)}

	h.selectTracker(t, "T1", models.WindowDay)
	h.waitFor(t, func(s Snapshot) bool { return s.TrackerID == "T1" })

	h.selectTracker(t, "T2", models.WindowWeek)
	s := h.waitFor(t, func(s Snapshot) bool { return s.TrackerID == "T2" })
	if !equalIDs(s.Recent, "b") || s.Window != models.WindowWeek {
		t.Fatalf("snapshot = %v %s, want [b] over 7d", ids(s.Recent), s.Window)
	}
	if h.broker.Len() != 1 {
		t.Errorf("broker has %d subscriptions, want 1", h.broker.Len())
	}

	if n := h.broker.Deliver(visit("late", "T1", 0)); n != 0 {
		t.Errorf("T1 event reached %d subscriptions after switching away", n)
	}
	h.broker.Deliver(visit("c", "T2", 0))
	s = h.waitFor(t, func(s Snapshot) bool { return len(s.Recent) == 2 })
	if !equalIDs(s.Recent, "c", "b") {
		t.Errorf("Recent = %v, want [c b]", ids(s.Recent))
	}
}

func TestDashboardDiscardsStaleFetch(t *testing.T) {
	h := newHarness(t, time.Hour)
	gate := make(chan struct{})
	h.fetcher.gates["T1"] = gate
	h.fetcher.events["T1"] = []models.VisitEvent{visit("slow", "T1", time.Minute)}
	h.fetcher.events["T2"] = []models.VisitEvent{visit("fast", "T2", time.Minute)}

	h.selectTracker(t, "T1", models.WindowDay)
	h.selectTracker(t, "T2", models.WindowDay)
	h.waitFor(t, func(s Snapshot) bool { return s.TrackerID == "T2" })

	close(gate)
	waitUntil(t, func() bool { return h.fetcher.calls.Load() == 2 })

	// Push a live event so a fresh snapshot follows any stale one.
	h.broker.Deliver(visit("live", "T2", 0))
	s := h.waitFor(t, func(s Snapshot) bool { return len(s.Recent) == 2 })
	if s.TrackerID != "T2" || !equalIDs(s.Recent, "live", "fast") {
		t.Errorf("snapshot = %s %v, want T2 [live fast]", s.TrackerID, ids(s.Recent))
	}
}

func TestDashboardMergesEventsArrivingDuringFetch(t *testing.T) {
	h := newHarness(t, time.Hour)
	gate := make(chan struct{})
	h.fetcher.gates["T1"] = gate
	h.fetcher.events["T1"] = []models.VisitEvent{
		visit("both", "T1", time.Second),
		visit("stored", "T1", time.Minute),
	}

	h.selectTracker(t, "T1", models.WindowDay)
	waitUntil(t, func() bool { return h.broker.Len() == 1 })

	h.broker.Deliver(visit("both", "T1", time.Second))
	h.broker.Deliver(visit("live", "T1", 0))
	// Give Run a moment to buffer the live events before the fetch returns.
	time.Sleep(50 * time.Millisecond)
	close(gate)

	s := h.waitFor(t, func(s Snapshot) bool { return s.TrackerID == "T1" })
	if !equalIDs(s.Recent, "live", "both", "stored") {
		t.Errorf("Recent = %v, want [live both stored]", ids(s.Recent))
	}
}

func TestDashboardFetchError(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.fetcher.err = errors.New("connection refused")

	h.selectTracker(t, "T1", models.WindowDay)
	s := h.waitFor(t, func(s Snapshot) bool { return s.TrackerID == "T1" })
	if s.Error == "" {
		t.Error("snapshot should carry an error")
	}
	if len(s.Recent) != 0 || s.Summary.Total != 0 {
		t.Errorf("error snapshot should be empty, got %v", ids(s.Recent))
	}
}

func TestDashboardTickRecomputesActiveNow(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond)
	h.fetcher.events["T1"] = []models.VisitEvent{visit("a", "T1", 4*time.Minute)}

	h.selectTracker(t, "T1", models.WindowDay)
	s := h.waitFor(t, func(s Snapshot) bool { return s.TrackerID == "T1" })
	if s.Summary.ActiveNow != 1 {
		t.Fatalf("ActiveNow = %d, want 1", s.Summary.ActiveNow)
	}

	calls := h.fetcher.calls.Load()
	h.clock.Advance(2 * time.Minute)
	s = h.waitFor(t, func(s Snapshot) bool { return s.Summary.ActiveNow == 0 })
	if s.Summary.Total != 1 {
		t.Errorf("Total = %d, want 1", s.Summary.Total)
	}
	if h.fetcher.calls.Load() != calls {
		t.Error("tick should not refetch")
	}
}

func TestDashboardExpiresEventsOutsideWindow(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.fetcher.events["T1"] = []models.VisitEvent{visit("early", "T1", 30*time.Minute)}

	h.selectTracker(t, "T1", models.WindowHour)
	s := h.waitFor(t, func(s Snapshot) bool { return s.TrackerID == "T1" })
	if s.Summary.Total != 1 {
		t.Fatalf("Total = %d, want 1", s.Summary.Total)
	}

	h.clock.Advance(2*time.Hour + 30*time.Minute)
	late := visit("late", "T1", 0)
	late.CreatedAt = h.clock.Now()
	h.broker.Deliver(late)

	s = h.waitFor(t, func(s Snapshot) bool { return len(s.Recent) > 0 && s.Recent[0].ID == "late" })
	if s.Summary.Total != 1 || !equalIDs(s.Recent, "late") {
		t.Errorf("Total = %d Recent = %v, want only the in-window event", s.Summary.Total, ids(s.Recent))
	}
	if !s.Summary.WindowStart.Equal(h.clock.Now().Add(-time.Hour)) {
		t.Errorf("WindowStart = %v", s.Summary.WindowStart)
	}
}

func TestDashboardTickExpiresEvents(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond)
	h.fetcher.events["T1"] = []models.VisitEvent{
		visit("new", "T1", 10*time.Minute),
		visit("old", "T1", 50*time.Minute),
	}

	h.selectTracker(t, "T1", models.WindowHour)
	s := h.waitFor(t, func(s Snapshot) bool { return s.TrackerID == "T1" })
	if s.Summary.Total != 2 {
		t.Fatalf("Total = %d, want 2", s.Summary.Total)
	}

	// "old" is now exactly at the window start and falls out.
	h.clock.Advance(10 * time.Minute)
	s = h.waitFor(t, func(s Snapshot) bool { return s.Summary.Total == 1 })
	if !equalIDs(s.Recent, "new") {
		t.Errorf("Recent = %v, want [new]", ids(s.Recent))
	}
}

func TestDashboardSelectValidation(t *testing.T) {
	h := newHarness(t, time.Hour)
	if err := h.dash.Select(context.Background(), "  ", models.WindowDay); !errors.Is(err, ErrTrackerRequired) {
		t.Errorf("Select(blank) = %v, want ErrTrackerRequired", err)
	}

	h.selectTracker(t, "T1", "")
	s := h.waitFor(t, func(s Snapshot) bool { return s.TrackerID == "T1" })
	if s.Window != models.DefaultWindow {
		t.Errorf("Window = %q, want default", s.Window)
	}
}

func TestDashboardCloseReleasesSubscription(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.selectTracker(t, "T1", models.WindowDay)
	h.waitFor(t, func(s Snapshot) bool { return s.TrackerID == "T1" })

	h.dash.Close()
	h.dash.Close()
	<-h.stopped

	if h.broker.Len() != 0 {
		t.Errorf("broker has %d subscriptions after Close", h.broker.Len())
	}
	for range h.dash.Updates() {
	}
	if err := h.dash.Select(context.Background(), "T1", models.WindowDay); !errors.Is(err, ErrClosed) {
		t.Errorf("Select after Close = %v, want ErrClosed", err)
	}
}
