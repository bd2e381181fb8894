// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package eventbus

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waypost/internal/models"
)

var (
	errMissingID      = errors.New("visit event has no id")
	errMissingTracker = errors.New("visit event has no tracker_id")
)

func validate(event *models.VisitEvent) error {
	if event == nil || event.ID == "" {
		return errMissingID
	}
	if event.TrackerID == "" {
		return errMissingTracker
	}
	return nil
}

// Marshal converts a visit to its wire form.
func Marshal(event *models.VisitEvent) ([]byte, error) {
	if err := validate(event); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a visit from its wire form.
func Unmarshal(data []byte) (*models.VisitEvent, error) {
	var event models.VisitEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if err := validate(&event); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	return &event, nil
}
