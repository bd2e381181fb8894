// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
)

// Transports.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("event bus is closed")

// Publisher publishes stored visits for live consumers.
type Publisher interface {
	PublishVisit(ctx context.Context, event *models.VisitEvent) error
}

// Subscriber streams every published visit.
type Subscriber interface {
	SubscribeVisits(ctx context.Context) (<-chan *models.VisitEvent, error)
}

// Bus carries inserted visits from ingestion to live-sync bridges over a
// Watermill transport. It implements both Publisher and Subscriber.
type Bus struct {
	transport string
	pub       message.Publisher
	sub       message.Subscriber
	cb        *gobreaker.CircuitBreaker[interface{}]
	logger    watermill.LoggerAdapter

	// publishTopic maps a tracker to a topic; subscribeTopic receives all.
	publishTopic   func(trackerID string) string
	subscribeTopic string

	// closers run after pub and sub are closed, in order.
	closers []func() error

	mu     sync.RWMutex
	closed bool
}

// Open builds the bus selected by cfg.Transport.
func Open(ctx context.Context, cfg config.EventsConfig) (*Bus, error) {
	switch cfg.Transport {
	case TransportMemory, "":
		return NewMemory(cfg), nil
	case TransportNATS:
		return newNATS(ctx, cfg)
	default:
		return nil, &config.ConfigurationError{Setting: "EVENTS_TRANSPORT", Reason: fmt.Sprintf("unknown transport %q", cfg.Transport)}
	}
}

// Transport names the underlying transport.
func (b *Bus) Transport() string {
	return b.transport
}

// PublishVisit serializes event and publishes it with circuit breaker
// protection. The message UUID is the event ID.
func (b *Bus) PublishVisit(ctx context.Context, event *models.VisitEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	data, err := Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.ID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set("tracker_id", event.TrackerID)
	msg.Metadata.Set("correlation_id", logging.CorrelationIDFromContext(ctx))

	topic := b.publishTopic(event.TrackerID)
	_, err = b.cb.Execute(func() (interface{}, error) {
		return nil, b.pub.Publish(topic, msg)
	})
	metrics.RecordBusPublish(b.transport, err)
	if err != nil {
		return fmt.Errorf("publish visit %s to %s: %w", event.ID, topic, err)
	}
	return nil
}

// SubscribeVisits returns a channel of decoded visits. Messages that fail to
// decode are acked and dropped. The channel closes when ctx is done or the
// bus is closed.
func (b *Bus) SubscribeVisits(ctx context.Context) (<-chan *models.VisitEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	messages, err := b.sub.Subscribe(ctx, b.subscribeTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", b.subscribeTopic, err)
	}

	out := make(chan *models.VisitEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event, err := Unmarshal(msg.Payload)
				msg.Ack()
				metrics.RecordBusConsume(err == nil)
				if err != nil {
					b.logger.Error("Dropping undecodable visit message", err, watermill.LogFields{
						"message_uuid": msg.UUID,
					})
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close shuts down the publisher, the subscriber and any transport
// resources. It is safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.pub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	// gochannel uses one value for both roles.
	if any(b.sub) != any(b.pub) {
		if err := b.sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newBreaker guards publishing so a failing transport sheds load quickly.
func newBreaker(name string) *gobreaker.CircuitBreaker[interface{}] {
	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     defaultBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= defaultBreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String(), int(to))
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Event bus circuit breaker state changed")
		},
	})
}
