package rss

import (
	"strings"
	"time"
)

// dateLayouts are tried in order; the first full match wins.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04 -0700",
	"Mon, 02 Jan 2006 15:04 MST",
	"02 Jan 2006 15:04:05 -0700",
	"02 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000-0700",
}

// ParseDate parses s with the known feed layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if strings.Contains(layout, "MST") {
			t = resolveZone(t)
		}
		return t, true
	}
	return time.Time{}, false
}

// zoneOffsets covers the abbreviations feeds use that time.LoadLocation
// cannot load. Ambiguous ones take their RFC 822 (North American) meaning.
var zoneOffsets = map[string]int{
	"UT":   0,
	"UTC":  0,
	"GMT":  0,
	"Z":    0,
	"EST":  -5 * 3600,
	"EDT":  -4 * 3600,
	"CST":  -6 * 3600,
	"CDT":  -5 * 3600,
	"MST":  -7 * 3600,
	"MDT":  -6 * 3600,
	"PST":  -8 * 3600,
	"PDT":  -7 * 3600,
	"AKST": -9 * 3600,
	"AKDT": -8 * 3600,
	"HST":  -10 * 3600,
	"BST":  1 * 3600,
	"CET":  1 * 3600,
	"CEST": 2 * 3600,
	"EET":  2 * 3600,
	"EEST": 3 * 3600,
	"AEST": 10 * 3600,
	"AEDT": 11 * 3600,
}

// resolveZone fixes the offset of a time parsed with a named zone. For
// abbreviations the local location does not know, time.Parse keeps the
// wall clock but assumes a zero offset.
func resolveZone(t time.Time) time.Time {
	name, offset := t.Zone()
	if offset != 0 {
		return t
	}

	var loc *time.Location
	if off, ok := zoneOffsets[strings.ToUpper(name)]; ok {
		loc = time.FixedZone(name, off)
	} else if l, err := time.LoadLocation(name); err == nil {
		loc = l
	} else {
		return t
	}

	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// NormalizeDate returns the parsed time, or now when s matches no layout.
// The caller cannot tell a fallback apart from a story published now.
func NormalizeDate(s string, now time.Time) time.Time {
	if t, ok := ParseDate(s); ok {
		return t
	}
	return now
}
