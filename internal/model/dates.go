package model

import (
	"fmt"
	"time"
)

// dateLayouts are tried in order. Zone-less layouts are read as UTC, and
// fractional seconds are accepted after the seconds field of any of them.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 UTC",
	"2006-01-02 15:04:05",
}

// ParseDate reads an event time as the HTTP date parameter, the score
// command and Okta exports write it. An empty value means now.
func ParseDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.UTC(), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
