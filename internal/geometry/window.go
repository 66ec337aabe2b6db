// Package geometry implements the calendar layout math shared by every
// view: which window a view covers, where timed events sit inside a day
// column and which row slot a multi-day bar occupies. All functions are
// pure; callers pass snapshots and receive freshly built structures.
package geometry

import (
	"fmt"
	"time"

	"dashcal/internal/dates"
	"dashcal/internal/model"
)

type ViewType string

const (
	ViewMonth  ViewType = "month"
	ViewWeek   ViewType = "week"
	ViewAgenda ViewType = "agenda"
)

// WeekMode selects the week view's window.
type WeekMode string

const (
	WeekCurrent   WeekMode = "current_week"
	WeekNext5Days WeekMode = "next_5_days"
	WeekNext7Days WeekMode = "next_7_days"
)

// MonthStart selects where the visible month grid begins.
type MonthStart string

const (
	MonthFromCurrentWeek MonthStart = "current_week"
	MonthFromStart       MonthStart = "start_of_month"
)

// agendaDays is current plus next week.
const agendaDays = 14

// monthPrefetch is how many months after the focused one are fetched.
const monthPrefetch = 2

// Options carries the view configuration the window math depends on.
type Options struct {
	WeekStart time.Weekday
	WeekMode  WeekMode
	// Now anchors month views: they never start before the current month.
	Now time.Time

	// Month grid only.
	MonthStart MonthStart
	NumWeeks   int
}

// ComputeRange returns the fetch and display window of a view.
func ComputeRange(view ViewType, focus time.Time, opts Options) (model.Window, error) {
	switch view {
	case ViewMonth:
		start := dates.Max(dates.StartOfMonth(focus), dates.StartOfMonth(opts.Now.In(focus.Location())))
		return model.Window{
			Start: dates.StartOfWeek(dates.StartOfMonth(start), opts.WeekStart),
			End:   dates.EndOfWeek(dates.EndOfMonth(start.AddDate(0, monthPrefetch, 0)), opts.WeekStart),
		}, nil

	case ViewWeek:
		switch opts.WeekMode {
		case WeekCurrent, "":
			return model.Window{
				Start: dates.StartOfWeek(focus, opts.WeekStart),
				End:   dates.EndOfWeek(focus, opts.WeekStart),
			}, nil
		case WeekNext5Days, WeekNext7Days:
			n := opts.WeekMode.Days()
			return model.Window{
				Start: dates.StartOfDay(focus),
				End:   dates.EndOfDay(dates.AddDays(focus, n-1)),
			}, nil
		default:
			return model.Window{}, fmt.Errorf("unknown week mode %q", opts.WeekMode)
		}

	case ViewAgenda:
		start := dates.StartOfWeek(focus, opts.WeekStart)
		return model.Window{
			Start: start,
			End:   dates.EndOfDay(dates.AddDays(start, agendaDays-1)),
		}, nil
	}

	return model.Window{}, fmt.Errorf("unknown view type %q", view)
}

// Days returns the number of day columns a week mode shows.
func (m WeekMode) Days() int {
	if m == WeekNext5Days {
		return 5
	}
	return 7
}

// Valid reports whether v names a known view.
func (v ViewType) Valid() bool {
	switch v {
	case ViewMonth, ViewWeek, ViewAgenda:
		return true
	}
	return false
}

// Days lists midnight of every day in w.
func Days(w model.Window) []time.Time {
	n := dates.DaysBetween(w.Start, w.End) + 1
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	first := dates.StartOfDay(w.Start)
	for i := 0; i < n; i++ {
		out = append(out, dates.AddDays(first, i))
	}
	return out
}

// Weeks splits w into week rows starting on weekStart. The first and last
// rows are clipped to w.
func Weeks(w model.Window, weekStart time.Weekday) []model.Window {
	var rows []model.Window
	for cur := dates.StartOfDay(w.Start); !cur.After(w.End); {
		end := dates.Min(dates.EndOfWeek(cur, weekStart), w.End)
		rows = append(rows, model.Window{Start: cur, End: end})
		cur = dates.AddDays(dates.StartOfWeek(cur, weekStart), 7)
	}
	return rows
}

// MonthGrid returns the visible week rows of a month view. Rows start at
// the first week of the focused month, or at the current week when the
// focused month is today's month and opts.MonthStart is current_week.
// NumWeeks > 0 caps the row count; rows never extend past the fetch window.
func MonthGrid(focus time.Time, opts Options) ([]model.Window, error) {
	w, err := ComputeRange(ViewMonth, focus, opts)
	if err != nil {
		return nil, err
	}
	rows := Weeks(w, opts.WeekStart)

	now := opts.Now.In(focus.Location())
	first := 0
	if opts.MonthStart != MonthFromStart && dates.IsSameMonth(dates.Max(focus, now), now) {
		cur := dates.StartOfWeek(now, opts.WeekStart)
		for i, r := range rows {
			if r.Start.Equal(cur) {
				first = i
				break
			}
		}
	}
	rows = rows[first:]

	if opts.NumWeeks > 0 && len(rows) > opts.NumWeeks {
		rows = rows[:opts.NumWeeks]
	}
	return rows, nil
}

// Direction of a navigation step.
type Direction int

const (
	Prev  Direction = -1
	Next  Direction = 1
	Today Direction = 0
)

// Step moves the focus date one page in dir. Month views never move
// before the current month.
func Step(view ViewType, mode WeekMode, focus, now time.Time, dir Direction) time.Time {
	if dir == Today {
		return dates.StartOfDay(now.In(focus.Location()))
	}
	switch view {
	case ViewMonth:
		next := dates.StartOfMonth(dates.AddMonths(focus, int(dir)))
		if floor := dates.StartOfMonth(now.In(focus.Location())); next.Before(floor) {
			return floor
		}
		return next
	case ViewWeek:
		return dates.AddDays(focus, int(dir)*mode.Days())
	default:
		return dates.AddDays(focus, int(dir)*7)
	}
}
