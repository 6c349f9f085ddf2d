// Package rollup turns per-bucket metric values into the aggregation levels
// a schema declares: dense daily timeseries, window summaries, and
// (current, prior) comparisons, plus facet ranking and truncation. The
// eligibility window and the content type filter are applied once per run,
// before any aggregation; nothing here re-filters.
package rollup

import (
	"fmt"
	"time"
)

// Window is a half-open day-bucketed interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowFrom derives a content item's eligibility window from its publication
// time: maxAgeDays whole days starting at the UTC day it was created.
func WindowFrom(createdAt time.Time, maxAgeDays int) Window {
	start := dayOf(createdAt)

	return Window{Start: start, End: start.AddDate(0, 0, maxAgeDays)}
}

// Contains reports whether t falls inside the window. The end bound is
// exclusive: an event at exactly Start+maxAge days is outside.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// IsEmpty reports whether the window covers no time at all.
func (w Window) IsEmpty() bool {
	return !w.Start.Before(w.End)
}

// Days enumerates the UTC day buckets the window covers, in order.
func (w Window) Days() []time.Time {
	if w.IsEmpty() {
		return nil
	}

	days := make([]time.Time, 0, int(w.End.Sub(w.Start).Hours()/24)+1)

	for day := dayOf(w.Start); day.Before(w.End); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}

	return days
}

// Previous returns the window of equal length immediately before this one.
// It exists as the runner's default prior policy for comparisons; callers
// may supply any other prior window instead.
func (w Window) Previous() Window {
	length := w.End.Sub(w.Start)

	return Window{Start: w.Start.Add(-length), End: w.Start}
}

// Union returns the smallest window covering both, used for bulk fetches
// across content items with different eligibility windows.
func (w Window) Union(other Window) Window {
	if w.IsEmpty() {
		return other
	}

	if other.IsEmpty() {
		return w
	}

	union := w

	if other.Start.Before(union.Start) {
		union.Start = other.Start
	}

	if other.End.After(union.End) {
		union.End = other.End
	}

	return union
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.UTC().Format("2006-01-02"), w.End.UTC().Format("2006-01-02"))
}

// dayOf truncates a time to its UTC day.
func dayOf(t time.Time) time.Time {
	u := t.UTC()

	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
