package service

import (
	"regexp"
	"strings"
	"time"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// sanitizeString collapses whitespace and trims the result.
func sanitizeString(value string) string {
	value = whitespaceRegex.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// dateLayouts are tried in order when parsing query dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate accepts RFC3339 timestamps, naive ISO timestamps (read as UTC)
// and bare dates (midnight UTC).
func ParseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, invalid(field, "is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalid(field, "invalid date %q", value)
}

// ParseDateRange parses both ends of a date range from raw query values.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate("start_date", start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate("end_date", end)
	if err != nil {
		return DateRange{}, err
	}
	return DateRange{Start: s, End: e}, nil
}
