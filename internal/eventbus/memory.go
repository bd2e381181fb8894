// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package eventbus

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/waypost/internal/config"
	"github.com/tomtom215/waypost/internal/logging"
)

const (
	defaultBreakerTimeout  = 30 * time.Second
	defaultBreakerFailures = 5

	// memoryTopic is shared by all trackers: gochannel matches topics
	// exactly and has no wildcard subscriptions.
	memoryTopic = "visits"
)

// NewMemory returns an in-process bus backed by Watermill's gochannel.
// Messages published with no subscriber attached are discarded.
func NewMemory(cfg config.EventsConfig) *Bus {
	logger := logging.NewWatermillAdapter()
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 256
	}

	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(buffer),
	}, logger)

	return &Bus{
		transport:      TransportMemory,
		pub:            ch,
		sub:            ch,
		cb:             newBreaker("eventbus_memory"),
		logger:         logger,
		publishTopic:   func(string) string { return memoryTopic },
		subscribeTopic: memoryTopic,
	}
}
