package utils

import (
	"fmt"
	"strings"
	"time"
)

// acceptedDateLayouts are the formats broker CSV exports are known to use,
// tried in order. Two-digit years land in 2000-2099 per Go's time package.
var acceptedDateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"2-Jan-2006",
	"02-Jan-2006",
	"20060102",
	"1/2/06",
}

// ParseFlexibleDate parses a date string against every accepted layout.
func ParseFlexibleDate(dateStr string) (time.Time, error) {
	s := strings.TrimSpace(dateStr)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range acceptedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", dateStr)
}

// ExportDateFormat is the layout used when writing transactions back out to CSV.
const ExportDateFormat = "1/2/2006"
