// Package recurrence expands weekly availability templates into concrete
// ranges for a bounded query window. A template is a rule (day of week plus a
// local wall-clock window), never a materialized series; expansion cost is
// linear in the number of days queried.
package recurrence

import (
	"errors"
	"time"

	"github.com/example/calendar-scheduler/internal/scheduler"
)

// Template describes a weekly repeating availability window in the owner's
// local time. StartsOn/EndsOn optionally bound the weeks the template covers.
type Template struct {
	DayOfWeek   time.Weekday
	StartMinute int
	EndMinute   int
	StartsOn    *time.Time
	EndsOn      *time.Time
}

// ErrInvalidWindow indicates the local window is empty or inverted.
var ErrInvalidWindow = errors.New("recurrence: local window must have positive extent")

// ErrInvalidRange indicates the query range is empty or inverted.
var ErrInvalidRange = errors.New("recurrence: query range must have positive extent")

// Expand converts the template into concrete absolute ranges that fall inside
// the query range. Local wall-clock minutes are resolved against loc day by
// day, so DST transitions shift the absolute instants the way a wall clock
// does. A nil loc means UTC.
func Expand(tpl Template, queryRange scheduler.TimeRange, loc *time.Location) ([]scheduler.TimeRange, error) {
	if tpl.EndMinute <= tpl.StartMinute {
		return nil, ErrInvalidWindow
	}
	if !queryRange.IsValid() {
		return nil, ErrInvalidRange
	}
	if loc == nil {
		loc = time.UTC
	}

	lower := queryRange.Start
	if tpl.StartsOn != nil && tpl.StartsOn.After(lower) {
		lower = *tpl.StartsOn
	}
	upper := queryRange.End
	if tpl.EndsOn != nil && tpl.EndsOn.Before(upper) {
		upper = *tpl.EndsOn
	}
	if !lower.Before(upper) {
		return nil, nil
	}

	var out []scheduler.TimeRange
	// Walk local calendar days; start one day early so a window that began
	// before the range but overlaps into it is not missed.
	day := lower.In(loc)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	for !day.After(upper.In(loc)) {
		if day.Weekday() == tpl.DayOfWeek {
			start := atMinute(day, tpl.StartMinute, loc)
			end := atMinute(day, tpl.EndMinute, loc)
			window := scheduler.TimeRange{Start: start, End: end}
			if window.Overlaps(scheduler.TimeRange{Start: lower, End: upper}) {
				out = append(out, clamp(window, lower, upper))
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}

// atMinute resolves a minute-of-day on the given local date. Going through
// time.Date keeps wall-clock semantics across DST transitions.
func atMinute(day time.Time, minute int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, loc)
}

func clamp(window scheduler.TimeRange, lower, upper time.Time) scheduler.TimeRange {
	if window.Start.Before(lower) {
		window.Start = lower
	}
	if window.End.After(upper) {
		window.End = upper
	}
	return window
}
