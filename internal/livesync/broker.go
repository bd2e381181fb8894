// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package livesync

import (
	"sync"
	"sync/atomic"

	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

// DefaultSubscriptionBuffer is the per-subscription channel capacity.
const DefaultSubscriptionBuffer = 64

// Filter selects which live events a subscription receives.
type Filter struct {
	TrackerID string
}

// Subscription is a cancellable stream of live events matching a Filter.
type Subscription struct {
	id      uint64
	filter  Filter
	ch      chan models.VisitEvent
	broker  *Broker
	once    sync.Once
	dropped atomic.Int64
}

// C returns the event channel. It is closed by Cancel.
func (s *Subscription) C() <-chan models.VisitEvent {
	return s.ch
}

// Filter returns the filter the subscription was created with.
func (s *Subscription) Filter() Filter {
	return s.filter
}

// Dropped reports how many events were discarded because the subscriber
// was not keeping up.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Cancel removes the subscription from its broker and closes C. It is safe
// to call more than once and from any goroutine.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.broker.remove(s)
	})
}

// Broker fans live events out to subscriptions keyed by tracker ID.
// Delivery never blocks: a full subscription drops the event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
	buffer int
}

// NewBroker creates a broker whose subscriptions buffer up to buffer events.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	return &Broker{
		subs:   make(map[string]map[uint64]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a subscription for f.TrackerID.
func (b *Broker) Subscribe(f Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		filter: f,
		ch:     make(chan models.VisitEvent, b.buffer),
		broker: b,
	}
	byID, ok := b.subs[f.TrackerID]
	if !ok {
		byID = make(map[uint64]*Subscription)
		b.subs[f.TrackerID] = byID
	}
	byID[sub.id] = sub
	metrics.LiveSubscriptions.Inc()
	return sub
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID := b.subs[s.filter.TrackerID]
	if _, ok := byID[s.id]; !ok {
		return
	}
	delete(byID, s.id)
	if len(byID) == 0 {
		delete(b.subs, s.filter.TrackerID)
	}
	close(s.ch)
	metrics.LiveSubscriptions.Dec()
}

// Deliver sends event to every subscription for its tracker and returns the
// number of subscriptions that accepted it.
func (b *Broker) Deliver(event models.VisitEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs[event.TrackerID] {
		select {
		case sub.ch <- event:
			delivered++
		default:
			sub.dropped.Add(1)
			metrics.LiveEventsDropped.Inc()
		}
	}
	return delivered
}

// Len returns the number of active subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, byID := range b.subs {
		n += len(byID)
	}
	return n
}

// Close cancels every subscription.
func (b *Broker) Close() {
	b.mu.RLock()
	all := make([]*Subscription, 0)
	for _, byID := range b.subs {
		for _, s := range byID {
			all = append(all, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range all {
		s.Cancel()
	}
}
