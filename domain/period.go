package domain

import (
	"errors"
	"time"
)

// Period is the unit a task list can be narrowed to.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

var ErrUnknownPeriod = errors.New("unknown period")

// ParsePeriod maps a query-parameter value to a Period. The empty string
// means no restriction.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodAll:
		return PeriodAll, nil
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return Period(s), nil
	default:
		return "", ErrUnknownPeriod
	}
}

// Window is a closed instant interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// RangeForPeriod resolves the calendar unit of the given period that contains
// the anchor. ok is false for PeriodAll, which imposes no restriction.
func RangeForPeriod(p Period, anchor time.Time) (Window, bool) {
	y, m, d := anchor.Date()
	loc := anchor.Location()
	switch p {
	case PeriodDay:
		start := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return Window{Start: start, End: endOfDay(start)}, true
	case PeriodWeek:
		ws := weekStart(anchor)
		return Window{Start: ws, End: endOfDay(ws.AddDate(0, 0, 6))}, true
	case PeriodMonth:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		last := start.AddDate(0, 1, -1)
		return Window{Start: start, End: endOfDay(last)}, true
	case PeriodYear:
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		end := time.Date(y, time.December, 31, 0, 0, 0, 0, loc)
		return Window{Start: start, End: endOfDay(end)}, true
	default:
		return Window{}, false
	}
}

// Navigate shifts the anchor by dir units of the given period. Month and year
// steps clamp the day-of-month to the target month's last day, so stepping
// forward and back from Jan 31 lands back in January. PeriodAll navigates
// nowhere.
func Navigate(p Period, anchor time.Time, dir int) time.Time {
	switch p {
	case PeriodDay:
		return anchor.AddDate(0, 0, dir)
	case PeriodWeek:
		return anchor.AddDate(0, 0, 7*dir)
	case PeriodMonth:
		return addMonthsClamped(anchor, dir)
	case PeriodYear:
		return addYearsClamped(anchor, dir)
	default:
		return anchor
	}
}

// SameWeek reports whether a and b fall in the same Sunday-starting week.
func SameWeek(a, b time.Time) bool {
	return weekStart(a).Equal(weekStart(b.In(a.Location())))
}

// weekStart returns midnight of the Sunday on or before t.
func weekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return midnight.AddDate(0, 0, -int(midnight.Weekday()))
}

func endOfDay(dayStart time.Time) time.Time {
	return dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, n, 0)
	last := daysInMonth(target.Year(), target.Month())
	if d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func addYearsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	last := daysInMonth(y+n, m)
	if d > last {
		d = last
	}
	return time.Date(y+n, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
