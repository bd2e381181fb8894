// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package ingest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/waypost/internal/enrichment"
	"github.com/tomtom215/waypost/internal/eventbus"
	"github.com/tomtom215/waypost/internal/logging"
	"github.com/tomtom215/waypost/internal/metrics"
	"github.com/tomtom215/waypost/internal/models"
	"github.com/tomtom215/waypost/internal/store"
	"github.com/tomtom215/waypost/internal/validation"
)

// publishTimeout bounds the bus publish after a visit is stored.
const publishTimeout = 5 * time.Second

// TrackRequest is the collector payload. TrackerIDAlias accepts the
// camelCase spelling some snippets send.
type TrackRequest struct {
	TrackerID      string `json:"tracker_id" validate:"notblank,nocontrol,max=256"`
	TrackerIDAlias string `json:"trackerId,omitempty" validate:"-"`
	URL            string `json:"url,omitempty" validate:"max=8192"`
	Referrer       string `json:"referrer,omitempty" validate:"max=8192"`
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithIDGenerator overrides the event ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(r *Recorder) { r.newID = newID }
}

// Recorder turns collector requests into stored visits.
type Recorder struct {
	store     store.Store
	publisher eventbus.Publisher
	now       func() time.Time
	newID     func() string
}

// NewRecorder creates a recorder. publisher may be nil, in which case
// stored visits are not announced to live dashboards.
func NewRecorder(s store.Store, publisher eventbus.Publisher, opts ...Option) *Recorder {
	r := &Recorder{
		store:     s,
		publisher: publisher,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates req, enriches it from h, stores it once and announces it
// on the event bus. Validation failures return *validation.RequestValidationError
// and store failures *store.StorageError; a failed announcement is logged
// and does not fail the call because the visit is already stored.
func (r *Recorder) Record(ctx context.Context, req TrackRequest, h http.Header) (*models.VisitEvent, error) {
	start := time.Now()

	if strings.TrimSpace(req.TrackerID) == "" {
		req.TrackerID = req.TrackerIDAlias
	}
	req.TrackerID = strings.TrimSpace(req.TrackerID)
	if verr := validation.ValidateStruct(&req); verr != nil {
		metrics.RecordIngestFailure("validation")
		return nil, verr
	}

	info := enrichment.Enrich(h, req.Referrer)
	event := &models.VisitEvent{
		ID:         r.newID(),
		TrackerID:  req.TrackerID,
		URL:        req.URL,
		Referrer:   info.Referrer,
		IP:         info.IP,
		UserAgent:  info.UserAgent,
		Country:    info.Country,
		Browser:    info.Browser,
		OS:         info.OS,
		DeviceType: info.DeviceType,
		CreatedAt:  r.now().UTC(),
	}

	if err := r.store.Insert(ctx, event); err != nil {
		var se *store.StorageError
		if !errors.As(err, &se) {
			err = &store.StorageError{Op: "insert", Err: err}
		}
		metrics.RecordIngestFailure("storage")
		logging.Ctx(ctx).Error().Err(err).
			Str("tracker_id", event.TrackerID).
			Msg("Failed to store visit")
		return nil, err
	}
	metrics.RecordVisit(event.DeviceType, time.Since(start))

	r.announce(ctx, event)
	return event, nil
}

func (r *Recorder) announce(ctx context.Context, event *models.VisitEvent) {
	if r.publisher == nil {
		return
	}
	// The visit is stored; a client hanging up must not cancel the announcement.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.publisher.PublishVisit(pubCtx, event); err != nil {
		metrics.RecordIngestFailure("publish")
		logging.Ctx(ctx).Warn().Err(err).
			Str("tracker_id", event.TrackerID).
			Str("visit_id", event.ID).
			Msg("Failed to publish visit to event bus")
	}
}
