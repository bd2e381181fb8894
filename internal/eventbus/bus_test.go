// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/models"
)

func testVisit(id, tracker string) *models.VisitEvent {
	return &models.VisitEvent{
		ID:         id,
		TrackerID:  tracker,
		URL:        "https://example.com/",
		Referrer:   models.DirectReferrer,
		IP:         models.UnknownIP,
		UserAgent:  models.UnknownDevice,
		Country:    models.Unknown,
		Browser:    models.Unknown,
		OS:         models.Unknown,
		DeviceType: models.DefaultDevice,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func receive(t *testing.T, ch <-chan *models.VisitEvent) *models.VisitEvent {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for visit")
		return nil
	}
}

func TestMemoryBusRoundTrip(t *testing.T) {
	bus := NewMemory(config.EventsConfig{BufferSize: 8})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.SubscribeVisits(ctx)
	if err != nil {
		t.Fatalf("SubscribeVisits() error = %v", err)
	}

	for _, e := range []*models.VisitEvent{testVisit("1", "T1"), testVisit("2", "T2")} {
		if err := bus.PublishVisit(ctx, e); err != nil {
			t.Fatalf("PublishVisit(%s) error = %v", e.ID, err)
		}
	}

	// gochannel delivers each publish from its own goroutine, so arrival
	// order is not guaranteed.
	got := map[string]*models.VisitEvent{}
	for i := 0; i < 2; i++ {
		e := receive(t, ch)
		got[e.ID] = e
	}
	if len(got) != 2 || got["1"] == nil || got["2"] == nil {
		t.Fatalf("received %v, want visits 1 and 2", got)
	}
	if got["2"].TrackerID != "T2" || !got["2"].CreatedAt.Equal(testVisit("", "").CreatedAt) {
		t.Errorf("decoded event = %+v", got["2"])
	}
}

func TestMemoryBusFansOutToEverySubscriber(t *testing.T) {
	bus := NewMemory(config.EventsConfig{BufferSize: 8})
	defer bus.Close()
	ctx := context.Background()

	a, _ := bus.SubscribeVisits(ctx)
	b, _ := bus.SubscribeVisits(ctx)

	if err := bus.PublishVisit(ctx, testVisit("x", "T1")); err != nil {
		t.Fatal(err)
	}
	if receive(t, a).ID != "x" || receive(t, b).ID != "x" {
		t.Error("both subscribers should receive the visit")
	}
}

func TestMemoryBusDropsUndecodableMessages(t *testing.T) {
	bus := NewMemory(config.EventsConfig{BufferSize: 8})
	defer bus.Close()
	ctx := context.Background()

	ch, _ := bus.SubscribeVisits(ctx)

	if err := bus.pub.Publish(memoryTopic, message.NewMessage("bad", []byte("{not json"))); err != nil {
		t.Fatal(err)
	}
	if err := bus.PublishVisit(ctx, testVisit("good", "T1")); err != nil {
		t.Fatal(err)
	}

	if got := receive(t, ch); got.ID != "good" {
		t.Errorf("received %q, want the valid visit after the bad one", got.ID)
	}
}

func TestPublishRejectsInvalidEvents(t *testing.T) {
	bus := NewMemory(config.EventsConfig{})
	defer bus.Close()

	err := bus.PublishVisit(context.Background(), testVisit("", "T1"))
	if !errors.Is(err, errMissingID) {
		t.Errorf("PublishVisit() error = %v, want errMissingID", err)
	}
	err = bus.PublishVisit(context.Background(), testVisit("1", ""))
	if !errors.Is(err, errMissingTracker) {
		t.Errorf("PublishVisit() error = %v, want errMissingTracker", err)
	}
}

func TestClosedBus(t *testing.T) {
	bus := NewMemory(config.EventsConfig{})
	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := bus.PublishVisit(context.Background(), testVisit("1", "T1")); !errors.Is(err, ErrClosed) {
		t.Errorf("PublishVisit() error = %v, want ErrClosed", err)
	}
	if _, err := bus.SubscribeVisits(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("SubscribeVisits() error = %v, want ErrClosed", err)
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	bus := NewMemory(config.EventsConfig{})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.SubscribeVisits(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestOpenUnknownTransport(t *testing.T) {
	_, err := Open(context.Background(), config.EventsConfig{Transport: "kafka"})
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Setting != "EVENTS_TRANSPORT" {
		t.Errorf("Open() error = %v, want EVENTS_TRANSPORT ConfigurationError", err)
	}
}

func TestUnmarshalValidates(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"id":"1"}`)); !errors.Is(err, errMissingTracker) {
		t.Errorf("Unmarshal() error = %v, want errMissingTracker", err)
	}
}
