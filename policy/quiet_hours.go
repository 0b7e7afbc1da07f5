package policy

import (
	"strconv"
	"strings"
	"time"
)

// ActiveAt reports whether the quiet-hours window covers the given instant,
// evaluated as wall-clock minutes-of-day in the configured timezone.
//
// The window is half-open [start, end). Equal bounds mean always-on. A
// start after the end wraps midnight: 22:00 to 08:00 is active at 23:00 and
// at 07:59, inactive at exactly 08:00. Any parse failure makes the window
// inactive so a config error can never silently suppress delivery.
func (q QuietHours) ActiveAt(now time.Time) bool {
	if !q.Enabled {
		return false
	}

	start, ok := parseMinutesOfDay(q.Start)
	if !ok {
		return false
	}
	end, ok := parseMinutesOfDay(q.End)
	if !ok {
		return false
	}

	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return false
	}

	local := now.In(loc)
	current := local.Hour()*60 + local.Minute()

	switch {
	case start == end:
		return true
	case start < end:
		return current >= start && current < end
	default:
		// Wraps midnight.
		return current >= start || current < end
	}
}

// parseMinutesOfDay converts "HH:MM" to minutes since midnight.
func parseMinutesOfDay(s string) (int, bool) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 23 {
		return 0, false
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, false
	}
	return hours*60 + minutes, true
}
