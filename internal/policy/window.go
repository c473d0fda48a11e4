package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// InWindow reports whether minuteOfDay lies in [StartMinute, EndMinute].
// Windows crossing midnight (start > end) are never satisfied.
func InWindow(minuteOfDay int, w domain.TimeWindow) bool {
	return w.StartMinute <= minuteOfDay && minuteOfDay <= w.EndMinute
}

// MinuteOfDay returns hour*60+minute of t in t's own location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
