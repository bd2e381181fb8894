// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package aggregate

import (
	"fmt"
	"strings"

	"github.com/tomtom215/waypost/internal/models"
)

// Field names a categorical attribute of a visit.
type Field string

const (
	FieldDevice  Field = "device"
	FieldBrowser Field = "browser"
	FieldOS      Field = "os"
	FieldCountry Field = "country"
)

// ParseField resolves a breakdown name used in query strings.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldDevice, FieldBrowser, FieldOS, FieldCountry:
		return f, nil
	case "device_type":
		return FieldDevice, nil
	}
	return "", fmt.Errorf("unknown breakdown field %q", s)
}

func (f Field) value(e *models.VisitEvent) string {
	var v string
	switch f {
	case FieldDevice:
		v = e.DeviceType
	case FieldBrowser:
		v = e.Browser
	case FieldOS:
		v = e.OS
	case FieldCountry:
		v = strings.ToUpper(strings.TrimSpace(e.Country))
		if strings.EqualFold(v, models.Unknown) {
			v = models.Unknown
		}
	}
	if strings.TrimSpace(v) == "" {
		return models.Unknown
	}
	return v
}

// Breakdown counts events per value of field, first-seen order. Missing
// values are counted as "Unknown". Callers sort for display.
func Breakdown(events []models.VisitEvent, field Field) []models.CategoryCount {
	counts := newCounter()
	for i := range events {
		counts.add(field.value(&events[i]))
	}
	return counts.list()
}
