// Package dates holds the wall-clock primitives the calendar geometry is
// built on. All functions work in the location of their argument and use
// calendar arithmetic (AddDate) so DST transitions never shift a day.
package dates

import "time"

// EndOfDayOffset is the distance from midnight to the last represented
// instant of a day. Millisecond precision matches what widget frontends
// store.
const EndOfDayOffset = 24*time.Hour - time.Millisecond

// DateLayout is the date-only wire layout (10 characters).
const DateLayout = "2006-01-02"

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// AddDays moves t by n calendar days keeping the wall-clock time.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// StartOfWeek returns midnight of the first day of t's week, where weeks
// begin on weekStart.
func StartOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	diff := (int(t.Weekday()) - int(weekStart) + 7) % 7
	return StartOfDay(AddDays(t, -diff))
}

// EndOfWeek returns the last instant of t's week.
func EndOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	return EndOfDay(AddDays(StartOfWeek(t, weekStart), 6))
}

func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func EndOfMonth(t time.Time) time.Time {
	return EndOfDay(AddDays(StartOfMonth(t).AddDate(0, 1, 0), -1))
}

// AddMonths moves to the same day n months away, clamping to the month's
// last day instead of overflowing (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	first := StartOfMonth(t).AddDate(0, n, 0)
	last := EndOfMonth(first).Day()
	d := t.Day()
	if d > last {
		d = last
	}
	h, mi, s := t.Clock()
	return time.Date(first.Year(), first.Month(), d, h, mi, s, t.Nanosecond(), t.Location())
}

func IsSameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func IsSameWeek(a, b time.Time, weekStart time.Weekday) bool {
	return StartOfWeek(a, weekStart).Equal(StartOfWeek(b.In(a.Location()), weekStart))
}

func IsSameMonth(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// DaysBetween counts calendar days from a to b, ignoring time of day.
// It is negative when b is on an earlier day.
func DaysBetween(a, b time.Time) int {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// MinutesOfDay returns the wall-clock minutes elapsed since midnight.
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func Max(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func Min(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
