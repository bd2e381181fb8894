// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

// Package enrichment derives visit metadata (client IP, country, browser,
// OS, device class and referrer) from request headers.
//
// Enrich is total: any header combination, including none at all, produces
// a fully populated Result where missing data is replaced by the sentinels
// in the models package. It performs no I/O.
package enrichment

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"github.com/tomtom215/waypost/internal/models"
)

// Result holds the request-derived fields of a VisitEvent.
type Result struct {
	IP         string
	UserAgent  string
	Country    string
	Browser    string
	OS         string
	DeviceType string
	Referrer   string
}

// Country hint headers in lookup order. Edge networks set one of these.
var countryHeaders = []string{
	"X-Vercel-IP-Country",
	"CF-IPCountry",
	"X-Country-Code",
	"X-Geo-Country",
}

// Enrich builds a Result from h. bodyReferrer is the referrer reported by
// the collector script; it is preferred over the Referer header, which only
// describes navigation to the collector request itself.
func Enrich(h http.Header, bodyReferrer string) Result {
	ua := strings.TrimSpace(h.Get("User-Agent"))

	r := Result{
		IP:        ClientIP(h),
		UserAgent: ua,
		Country:   Country(h),
		Referrer:  Referrer(h, bodyReferrer),
	}
	r.Browser, r.OS, r.DeviceType = ParseUserAgent(ua, h.Get("Sec-CH-UA-Mobile"))

	if r.UserAgent == "" {
		r.UserAgent = models.UnknownDevice
	}
	return r
}

// ClientIP returns the first address in X-Forwarded-For, then X-Real-IP,
// then the UnknownIP sentinel.
func ClientIP(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return models.UnknownIP
}

// Country returns the upper-cased two letter country hint, or Unknown.
// "XX" and "T1" (Tor) are placeholder codes some edges emit.
func Country(h http.Header) string {
	for _, name := range countryHeaders {
		code := strings.ToUpper(strings.TrimSpace(h.Get(name)))
		if code == "" {
			continue
		}
		if code == "XX" || code == "T1" || !isAlpha2(code) {
			return models.Unknown
		}
		return code
	}
	return models.Unknown
}

func isAlpha2(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// Referrer picks the client-reported referrer, then the Referer header,
// then the Direct sentinel.
func Referrer(h http.Header, bodyReferrer string) string {
	if ref := strings.TrimSpace(bodyReferrer); ref != "" {
		return ref
	}
	if ref := strings.TrimSpace(h.Get("Referer")); ref != "" {
		return ref
	}
	return models.DirectReferrer
}

// ParseUserAgent returns browser, OS and device class for ua. mobileHint
// is the raw Sec-CH-UA-Mobile client hint ("?1" or "?0"), if any.
func ParseUserAgent(ua, mobileHint string) (browser, os, device string) {
	browser, os = models.Unknown, models.Unknown
	if ua == "" {
		return browser, os, deviceFromHint(mobileHint, models.DefaultDevice)
	}

	parsed := useragent.New(ua)
	if name, _ := parsed.Browser(); strings.TrimSpace(name) != "" {
		browser = name
	}
	if name := parsed.OSInfo().Name; strings.TrimSpace(name) != "" {
		os = name
	} else if raw := strings.TrimSpace(parsed.OS()); raw != "" {
		os = raw
	}

	switch {
	case strings.TrimSpace(mobileHint) == "?1":
		device = "Mobile"
	case parsed.Bot():
		device = "Bot"
	case parsed.Mobile():
		device = "Mobile"
	default:
		device = DeviceFromUserAgent(ua)
	}
	return browser, os, device
}

func deviceFromHint(hint, fallback string) string {
	if strings.TrimSpace(hint) == "?1" {
		return "Mobile"
	}
	return fallback
}

// DeviceFromUserAgent classifies ua by substring when the parser gives no
// explicit signal. Tablets are checked before phones because iPad and
// Android tablet agents also mention mobile platforms.
func DeviceFromUserAgent(ua string) string {
	switch {
	case strings.Contains(ua, "iPad"), strings.Contains(ua, "Tablet"):
		return "Tablet"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPod"):
		return "Mobile"
	case strings.Contains(ua, "Android"):
		if strings.Contains(ua, "Mobile") {
			return "Mobile"
		}
		return "Tablet"
	case strings.Contains(ua, "Windows"),
		strings.Contains(ua, "Macintosh"),
		strings.Contains(ua, "Mac OS"),
		strings.Contains(ua, "X11"),
		strings.Contains(ua, "Linux"):
		return "Desktop"
	}
	return models.DefaultDevice
}
