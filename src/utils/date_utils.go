package utils

import (
	"fmt"
	"strings"
	"time"
)

// RunDateFormat is the MMDDYYYY convention the upstream filenames use.
const RunDateFormat = "01022006"

// Layouts the upstream CSV files have been observed to use for valuation
// dates, tried in order.
var navDateLayouts = []string{
	"01/02/2006",
	"2006-01-02",
	"02-01-2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"2006-01-02 15:04:05",
}

// ParseNAVDate parses a valuation date, inferring the layout. The result is
// truncated to the date.
func ParseNAVDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range navDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}

// ParseRunDate parses the MMDDYYYY date string that keys one processing run.
func ParseRunDate(s string) (time.Time, error) {
	t, err := time.Parse(RunDateFormat, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run date %q, expected MMDDYYYY: %w", s, err)
	}
	return t, nil
}

// DateOnly formats a time as the store's canonical YYYY-MM-DD.
func DateOnly(t time.Time) string {
	return t.Format("2006-01-02")
}
