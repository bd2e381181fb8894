// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/waypost/internal/eventbus"
	"github.com/tomtom215/waypost/internal/models"
	"github.com/tomtom215/waypost/internal/store"
	"github.com/tomtom215/waypost/internal/validation"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.VisitEvent
	err    error
}

func (p *recordingPublisher) PublishVisit(ctx context.Context, e *models.VisitEvent) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type failingStore struct {
	*store.Memory
	err error
}

func (f *failingStore) Insert(context.Context, *models.VisitEvent) error {
	return f.err
}

func newRecorder(s store.Store, p *recordingPublisher) *Recorder {
	var n atomic.Int64
	var pub eventbus.Publisher
	if p != nil {
		pub = p
	}
	return NewRecorder(s, pub,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", n.Add(1)) }),
	)
}

func TestRecordStoresEnrichedVisit(t *testing.T) {
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	r := newRecorder(mem, pub)

	h := http.Header{}
	h.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	h.Set("CF-IPCountry", "de")
	h.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")

	event, err := r.Record(context.Background(), TrackRequest{
		TrackerID: "site-1",
		URL:       "https://example.com/pricing",
		Referrer:  "https://news.ycombinator.com/",
	}, h)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if event.ID != "id-1" || !event.CreatedAt.Equal(fixedNow) {
		t.Errorf("ID/CreatedAt = %s/%s", event.ID, event.CreatedAt)
	}
	if event.IP != "203.0.113.9" || event.Country != "DE" || event.DeviceType != "Mobile" {
		t.Errorf("enrichment = ip %q country %q device %q", event.IP, event.Country, event.DeviceType)
	}
	if event.Referrer != "https://news.ycombinator.com/" {
		t.Errorf("Referrer = %q", event.Referrer)
	}

	stored, err := mem.ListSince(context.Background(), "site-1", time.Time{}, 0)
	if err != nil || len(stored) != 1 || stored[0].ID != "id-1" {
		t.Fatalf("stored = %v, %v", stored, err)
	}
	if pub.count() != 1 {
		t.Errorf("published %d visits, want 1", pub.count())
	}
}

func TestRecordDefaultsWithoutHeaders(t *testing.T) {
	mem := store.NewMemory()
	event, err := newRecorder(mem, nil).Record(context.Background(), TrackRequest{TrackerID: "t"}, http.Header{})
	if err != nil {
		t.Fatal(err)
	}
	want := models.VisitEvent{
		ID: "id-1", TrackerID: "t",
		Referrer: models.DirectReferrer, IP: models.UnknownIP, UserAgent: models.UnknownDevice,
		Country: models.Unknown, Browser: models.Unknown, OS: models.Unknown,
		DeviceType: models.DefaultDevice, CreatedAt: fixedNow,
	}
	if *event != want {
		t.Errorf("event = %+v\nwant    %+v", *event, want)
	}
}

func TestRecordAcceptsCamelCaseTrackerID(t *testing.T) {
	mem := store.NewMemory()
	event, err := newRecorder(mem, nil).Record(context.Background(), TrackRequest{TrackerIDAlias: " abc "}, nil)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if event.TrackerID != "abc" {
		t.Errorf("TrackerID = %q, want abc", event.TrackerID)
	}
}

func TestRecordRejectsMissingTracker(t *testing.T) {
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	r := newRecorder(mem, pub)

	for _, id := range []string{"", "   "} {
		_, err := r.Record(context.Background(), TrackRequest{TrackerID: id, URL: "/x"}, http.Header{})
		var verr *validation.RequestValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Record(%q) error = %v, want RequestValidationError", id, err)
		}
		if verr.Error() != "tracker_id is required" {
			t.Errorf("message = %q", verr.Error())
		}
	}
	if mem.Len() != 0 || pub.count() != 0 {
		t.Error("rejected requests must not be stored or published")
	}
}

func TestRecordRejectsControlCharsInTracker(t *testing.T) {
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	r := newRecorder(mem, pub)

	tests := []struct {
		name string
		id   string
	}{
		{"nul", "site\x00a"},
		{"trailing nul", "site\x00"},
		{"escape", "site\x1b[0m"},
		{"delete", "site\x7f"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Record(context.Background(), TrackRequest{TrackerID: tt.id, URL: "/x"}, http.Header{})
			var verr *validation.RequestValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Record(%q) error = %v, want RequestValidationError", tt.id, err)
			}
			if verr.Error() != "tracker_id must not contain control characters" {
				t.Errorf("message = %q", verr.Error())
			}
		})
	}
	if mem.Len() != 0 || pub.count() != 0 {
		t.Error("rejected requests must not be stored or published")
	}
}

func TestRecordStorageFailure(t *testing.T) {
	pub := &recordingPublisher{}
	fs := &failingStore{Memory: store.NewMemory(), err: errors.New("disk full")}
	_, err := newRecorder(fs, pub).Record(context.Background(), TrackRequest{TrackerID: "t"}, nil)

	var se *store.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("Record() error = %v, want StorageError", err)
	}
	if se.Op != "insert" {
		t.Errorf("Op = %q, want insert", se.Op)
	}
	if pub.count() != 0 {
		t.Error("failed inserts must not be published")
	}
}

func TestRecordPublishFailureStillSucceeds(t *testing.T) {
	mem := store.NewMemory()
	pub := &recordingPublisher{err: errors.New("bus down")}
	event, err := newRecorder(mem, pub).Record(context.Background(), TrackRequest{TrackerID: "t"}, nil)
	if err != nil {
		t.Fatalf("Record() error = %v, want nil", err)
	}
	if event == nil || mem.Len() != 1 {
		t.Error("visit should be stored despite publish failure")
	}
}

func TestRecordPublishesAfterClientDisconnect(t *testing.T) {
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	r := newRecorder(mem, pub)

	ctx, cancel := context.WithCancel(context.Background())
	// Insert succeeds with a live context; cancel before the announcement
	// by wrapping the store.
	s := &cancelAfterInsert{Store: mem, cancel: cancel}
	r.store = s

	if _, err := r.Record(ctx, TrackRequest{TrackerID: "t"}, nil); err != nil {
		t.Fatal(err)
	}
	if pub.count() != 1 {
		t.Error("visit should be published even if the request context is canceled")
	}
}

type cancelAfterInsert struct {
	store.Store
	cancel context.CancelFunc
}

func (c *cancelAfterInsert) Insert(ctx context.Context, e *models.VisitEvent) error {
	err := c.Store.Insert(ctx, e)
	c.cancel()
	return err
}

func TestRecordIsNotIdempotent(t *testing.T) {
	mem := store.NewMemory()
	r := NewRecorder(mem, nil)
	req := TrackRequest{TrackerID: "t", URL: "/same"}

	a, err := r.Record(context.Background(), req, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Record(context.Background(), req, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID || mem.Len() != 2 {
		t.Errorf("identical requests should produce two visits, got ids %s %s, len %d", a.ID, b.ID, mem.Len())
	}
}

func TestRecordConcurrent(t *testing.T) {
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	r := NewRecorder(mem, pub)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Record(context.Background(), TrackRequest{
				TrackerID: fmt.Sprintf("t%d", i%3),
				URL:       fmt.Sprintf("/p/%d", i),
			}, nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if mem.Len() != n || pub.count() != n {
		t.Errorf("stored %d, published %d, want %d each", mem.Len(), pub.count(), n)
	}
}
