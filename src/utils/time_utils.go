package utils

import "time"

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// DateString renders t as the engine's canonical YYYY-MM-DD local date.
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}
