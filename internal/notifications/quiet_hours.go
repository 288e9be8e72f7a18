package notifications

import (
	"fmt"
	"time"
)

// InQuietHours reports whether now falls inside the [start, end) window
// expressed in the recipient's timezone. The window may wrap midnight
// ("22:00"–"07:00"). Empty start and end means no quiet hours. An
// unknown timezone falls back to UTC rather than dropping the check.
func InQuietHours(now time.Time, tz, start, end string) bool {
	if start == "" || end == "" {
		return false
	}

	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	startMin, err := parseWallClock(start)
	if err != nil {
		return false
	}
	endMin, err := parseWallClock(end)
	if err != nil {
		return false
	}

	if startMin == endMin {
		return false
	}
	if startMin < endMin {
		return minute >= startMin && minute < endMin
	}
	// Wraps midnight.
	return minute >= startMin || minute < endMin
}

// parseWallClock converts "HH:MM" into minutes since midnight.
func parseWallClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse wall clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("wall clock %q out of range", s)
	}
	return h*60 + m, nil
}
