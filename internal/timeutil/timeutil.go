// Package timeutil holds the pure conversions between epoch-millisecond
// timestamps, local calendar days, and clock-display strings. Everything here
// works in the process's local zone; the tracker has no notion of any other.
package timeutil

import (
	"fmt"
	"time"
)

const dayKeyLayout = "2006-01-02"

// DayKey returns the local calendar date of an epoch-ms timestamp as
// YYYY-MM-DD. Day keys are the partitioning unit for all history views.
func DayKey(ms int64) string {
	return time.UnixMilli(ms).Format(dayKeyLayout)
}

// SameDay reports whether two timestamps fall on the same local calendar day.
func SameDay(aMs, bMs int64) bool {
	return DayKey(aMs) == DayKey(bMs)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns the most recent Monday 00:00 local, treating Sunday as
// the last day of the week.
func StartOfWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 { // Sunday -> 7
		weekday = 7
	}
	return StartOfDay(t).AddDate(0, 0, -(weekday - 1))
}

// WeekPastDays returns the day keys of the current week before today, most
// recent first. Today itself is excluded; it lives in the active view, not in
// history.
func WeekPastDays(now time.Time) []string {
	today := StartOfDay(now)
	var days []string
	for d := StartOfWeek(now); d.Before(today); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(dayKeyLayout))
	}
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	return days
}

// FormatDuration renders a millisecond duration as h:mm:ss.
func FormatDuration(ms int64) string {
	s := ms / 1000
	return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// FormatShort renders a millisecond duration for the terminal title:
// "1h 5m", or just "5m" under an hour.
func FormatShort(ms int64) string {
	totalMin := ms / 60000
	h := totalMin / 60
	m := totalMin % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// FormatClock renders the local wall-clock time of a timestamp as HH:MM.
func FormatClock(ms int64) string {
	return time.UnixMilli(ms).Format("15:04")
}

// FormatDayLabel renders a day key as e.g. "tue aug 26" for the history list.
func FormatDayLabel(key string) string {
	d, err := time.ParseInLocation(dayKeyLayout, key, time.Local)
	if err != nil {
		return key
	}
	return d.Format("Mon Jan 2")
}

// ApplyClock reparents an HH:MM wall-clock time onto the calendar day of
// originalMs. Session edits go through this so they change the time of day
// but never which day the session belongs to.
func ApplyClock(originalMs int64, clock string) (int64, error) {
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", clock, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", clock)
	}
	d := time.UnixMilli(originalMs)
	y, mo, day := d.Date()
	return time.Date(y, mo, day, h, m, 0, 0, d.Location()).UnixMilli(), nil
}
