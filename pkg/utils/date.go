package utils

import (
	"math"
	"time"
)

// TimeNowUTC is the clock used by services when no other clock is injected.
func TimeNowUTC() time.Time {
	return time.Now().UTC()
}

// TruncateDay returns midnight UTC of the calendar day of t, as seen in UTC.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays adds n calendar days to the UTC day of t.
func AddDays(t time.Time, n int) time.Time {
	return TruncateDay(t).AddDate(0, 0, n)
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(TruncateDay(b).Sub(TruncateDay(a)).Hours() / 24))
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return TruncateDay(a).Equal(TruncateDay(b))
}

// PrettyDate formats t for notifications.
func PrettyDate(t time.Time) string {
	return t.UTC().Format("02 Jan 2006 15:04 UTC")
}
