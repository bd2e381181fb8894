// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package livesync

import (
	"context"
	"errors"

	"github.com/tomtom215/waypost/internal/eventbus"
	"github.com/tomtom215/waypost/internal/logging"
)

// errSubscriptionClosed makes the supervisor restart the bridge when the
// bus closes its channel while the service is still meant to be running.
var errSubscriptionClosed = errors.New("event bus subscription closed")

// Bridge feeds visits from the event bus into a Broker. It implements
// suture.Service.
type Bridge struct {
	bus    eventbus.Subscriber
	broker *Broker
}

// NewBridge creates a bridge from bus to broker.
func NewBridge(bus eventbus.Subscriber, broker *Broker) *Bridge {
	return &Bridge{bus: bus, broker: broker}
}

// Serve consumes the bus until ctx is canceled.
func (b *Bridge) Serve(ctx context.Context) error {
	visits, err := b.bus.SubscribeVisits(ctx)
	if err != nil {
		return err
	}
	logging.Info().Str("component", "live-bridge").Msg("Live bridge subscribed to event bus")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-visits:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errSubscriptionClosed
			}
			b.broker.Deliver(*v)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (b *Bridge) String() string {
	return "live-bridge"
}
