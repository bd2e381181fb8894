// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package aggregate

import (
	"strings"

	"github.com/tomtom215/waypost/internal/models"
)

// Referrer source categories.
const (
	SourceFacebook    = "Facebook"
	SourceTwitter     = "X/Twitter"
	SourceInstagram   = "Instagram"
	SourceTelegram    = "Telegram"
	SourceYouTube     = "YouTube"
	SourceGoogle      = "Google"
	SourceTikTok      = "TikTok"
	SourceDirect      = "Direct"
	SourceWebReferrer = "Web Referrer"
)

type referrerRule struct {
	source   string
	keywords []string
}

// referrerRules are evaluated in order; the first match wins.
var referrerRules = []referrerRule{
	{SourceFacebook, []string{"facebook"}},
	{SourceTwitter, []string{"twitter", "x.com"}},
	{SourceInstagram, []string{"instagram"}},
	{SourceTelegram, []string{"telegram", "t.me"}},
	{SourceYouTube, []string{"youtube"}},
	{SourceGoogle, []string{"google"}},
	{SourceTikTok, []string{"tiktok"}},
}

func isDirect(ref string) bool {
	return ref == "" || strings.EqualFold(ref, models.DirectReferrer)
}

// ClassifyReferrer maps a referrer to a coarse traffic source using
// case-insensitive substring rules.
func ClassifyReferrer(ref string) string {
	ref = strings.TrimSpace(ref)
	if isDirect(ref) {
		return SourceDirect
	}

	lower := strings.ToLower(ref)
	for _, rule := range referrerRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.source
			}
		}
	}
	return SourceWebReferrer
}

// ReferrerSources counts events per traffic source in first-seen order.
func ReferrerSources(events []models.VisitEvent) []models.CategoryCount {
	counts := newCounter()
	for i := range events {
		counts.add(ClassifyReferrer(events[i].Referrer))
	}
	return counts.list()
}
