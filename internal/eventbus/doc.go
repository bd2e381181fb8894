// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package eventbus carries stored visits from the collector to live
// dashboard bridges using Watermill.
//
// Two transports are available:
//
//   - memory (default): Watermill gochannel, in process. Every subscriber
//     receives every visit; nothing is persisted.
//   - nats: Watermill NATS JetStream publisher and subscriber, with an
//     optional embedded nats-server. Requires building with -tags=nats.
//     Visits are published on visits.<tracker> and consumed from visits.>
//     by an ephemeral consumer per instance.
//
// Payloads are JSON-encoded models.VisitEvent values (goccy/go-json); the
// Watermill message UUID is the event ID, which JetStream uses for
// de-duplication. Publishing goes through a gobreaker circuit breaker.
//
// Publishing is best-effort from the collector's point of view: the visit
// is already durable in the store, so a bus failure is logged and counted
// but never fails the ingest request.
package eventbus
