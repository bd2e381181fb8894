// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

//go:build !nats

package eventbus

import (
	"context"

	"github.com/tomtom215/waypost/internal/config"
)

// NATSAvailable reports whether this binary was built with NATS support.
const NATSAvailable = false

func newNATS(_ context.Context, _ config.EventsConfig) (*Bus, error) {
	return nil, &config.ConfigurationError{
		Setting: "EVENTS_TRANSPORT",
		Reason:  "is nats but this binary was built without NATS support (build with -tags=nats)",
	}
}
