// internal/rfms/dates.go
package rfms

import (
	"strings"
	"time"
)

// RFMS returns dates in three encodings depending on which backend module
// produced the record: compact numeric ("20240115"), US-style ("01-15-2024"),
// or ISO 8601 with or without a time component. ParseRemoteDate tries them in
// that order and canonicalizes to midnight UTC, discarding any time portion.
// It fails loudly with *UnparseableDateError rather than guessing — whether a
// missing date means "leave unscheduled" or "reject the record" is the sync
// engine's call, not the parser's.
func ParseRemoteDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &UnparseableDateError{Raw: raw}
	}

	layouts := []string{
		"20060102",   // compact numeric
		"01-02-2006", // MM-DD-YYYY
		"2006-01-02", // ISO date
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return midnightUTC(t), nil
		}
	}

	// ISO date-times: with zone, without zone, with fractional seconds.
	dateTimeLayouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return midnightUTC(t), nil
		}
	}

	return time.Time{}, &UnparseableDateError{Raw: raw}
}

func midnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
