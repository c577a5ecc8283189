// Package aggregate derives totals from a dataset snapshot. All functions are
// pure reads partitioned by the local calendar day and the Monday-start week.
//
// Day-level history counts closed sessions only; the open session has not
// concluded yet, so it appears in the live today/week totals but never in a
// specific day's breakdown.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"tikkit/internal/domain"
	"tikkit/internal/timeutil"
)

// TaskToday sums the task's sessions started on today's local date, counting
// the open session live.
func TaskToday(t *domain.Task, now time.Time) int64 {
	nowMs := now.UnixMilli()
	today := timeutil.DayKey(nowMs)
	var total int64
	for _, s := range t.Sessions {
		if timeutil.DayKey(s.Start) == today {
			total += s.DurationMs(nowMs)
		}
	}
	return total
}

// TaskTotal sums every session of the task, counting the open session live.
func TaskTotal(t *domain.Task, now time.Time) int64 {
	nowMs := now.UnixMilli()
	var total int64
	for _, s := range t.Sessions {
		total += s.DurationMs(nowMs)
	}
	return total
}

// AllToday sums TaskToday over the whole dataset.
func AllToday(ds *domain.Dataset, now time.Time) int64 {
	var total int64
	for _, t := range ds.Tasks {
		total += TaskToday(t, now)
	}
	return total
}

// WeekTotal sums every session started at or after Monday 00:00 local,
// counting the open session live.
func WeekTotal(ds *domain.Dataset, now time.Time) int64 {
	nowMs := now.UnixMilli()
	mondayMs := timeutil.StartOfWeek(now).UnixMilli()
	var total int64
	for _, t := range ds.Tasks {
		for _, s := range t.Sessions {
			if s.Start >= mondayMs {
				total += s.DurationMs(nowMs)
			}
		}
	}
	return total
}

// DayTotal sums the closed sessions of every task whose start falls on the
// given day key.
func DayTotal(ds *domain.Dataset, dayKey string) int64 {
	var total int64
	for _, t := range ds.Tasks {
		total += taskDay(t, dayKey)
	}
	return total
}

// DayEntry is one task's share of a day in the history breakdown.
type DayEntry struct {
	ID   string
	Name string
	Ms   int64
}

// TasksForDay returns the per-task breakdown of a day, largest share first.
// Tasks with no closed time on that day are omitted.
func TasksForDay(ds *domain.Dataset, dayKey string) []DayEntry {
	var out []DayEntry
	for _, t := range ds.Tasks {
		if ms := taskDay(t, dayKey); ms > 0 {
			out = append(out, DayEntry{ID: t.ID, Name: t.Name, Ms: ms})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ms > out[j].Ms })
	return out
}

func taskDay(t *domain.Task, dayKey string) int64 {
	var total int64
	for _, s := range t.Sessions {
		if s.End != nil && timeutil.DayKey(s.Start) == dayKey {
			total += *s.End - s.Start
		}
	}
	return total
}

// HistoryDays returns this week's past day keys that have closed time, most
// recent first.
func HistoryDays(ds *domain.Dataset, now time.Time) []string {
	var out []string
	for _, key := range timeutil.WeekPastDays(now) {
		if DayTotal(ds, key) > 0 {
			out = append(out, key)
		}
	}
	return out
}

// Filter returns the tasks visible in the active list. With an empty query
// that is every task with activity today or currently running; a non-empty
// query matches by case-insensitive substring of the name instead.
func Filter(ds *domain.Dataset, query string, now time.Time) []*domain.Task {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []*domain.Task
	for _, t := range ds.Tasks {
		if q == "" {
			if TaskToday(t, now) > 0 || t.OpenSession() != nil {
				out = append(out, t)
			}
		} else if strings.Contains(strings.ToLower(t.Name), q) {
			out = append(out, t)
		}
	}
	return out
}
