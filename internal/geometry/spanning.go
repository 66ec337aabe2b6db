package geometry

import (
	"sort"
	"time"

	"dashcal/internal/dates"
	"dashcal/internal/model"
)

// Slot is one cell of a spanning bar.
type Slot struct {
	Event model.Event `json:"event"`

	// Begins is set on the event's own first day; Ends when the event
	// finishes within this day's week. Presentation uses them for caps.
	Begins bool `json:"begins"`
	Ends   bool `json:"ends"`

	// Render marks the cell where the bar is drawn for its week row and
	// Span how many cells it covers from there.
	Render bool `json:"render"`
	Span   int  `json:"span"`
}

// SlotMap is indexed [day][slot]. A nil cell is an empty slot.
type SlotMap [][]*Slot

// Distribute assigns every event intersecting [windowStart, windowEnd] a
// row slot. An event keeps the slot it took on its (clipped) first day for
// every day it covers.
//
// Events are placed by start, longer first on ties. Any earlier event that
// covers a later day of the current one also covers its first day, so the
// slot chosen there is free on every following day.
func Distribute(events []model.Event, windowStart, windowEnd time.Time, weekStart time.Weekday) SlotMap {
	first := dates.StartOfDay(windowStart)
	days := dates.DaysBetween(first, windowEnd) + 1
	if days <= 0 {
		return SlotMap{}
	}
	out := make(SlotMap, days)

	candidates := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if intersects(ev, windowStart, windowEnd) {
			candidates = append(candidates, ev)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.End.After(b.End)
	})

	for _, ev := range candidates {
		last := lastDay(ev.End, ev.Start)
		from := dates.DaysBetween(first, dates.Max(ev.Start, windowStart))
		to := dates.DaysBetween(first, dates.Min(last, windowEnd))
		if to < from {
			to = from
		}

		slot := freeSlot(out[from])
		for d := from; d <= to; d++ {
			for len(out[d]) <= slot {
				out[d] = append(out[d], nil)
			}
			date := dates.AddDays(first, d)
			out[d][slot] = &Slot{
				Event:  ev,
				Begins: dates.IsSameDay(ev.Start, date),
				Ends:   dates.IsSameWeek(last, date, weekStart),
				Render: d == from || date.Weekday() == weekStart,
				Span:   spanFrom(d, to, date, weekStart),
			}
		}
	}
	return out
}

// DistributeWeeks distributes events over every week row of w.
func DistributeWeeks(events []model.Event, w model.Window, weekStart time.Weekday) []SlotMap {
	rows := Weeks(w, weekStart)
	out := make([]SlotMap, 0, len(rows))
	for _, r := range rows {
		out = append(out, Distribute(events, r.Start, r.End, weekStart))
	}
	return out
}

// SlotCount returns the number of slot rows a map needs.
func (m SlotMap) SlotCount() int {
	n := 0
	for _, day := range m {
		n = max(n, len(day))
	}
	return n
}

func intersects(ev model.Event, start, end time.Time) bool {
	if ev.Start.After(end) {
		return false
	}
	if ev.End.After(start) {
		return true
	}
	// Zero-length events sitting on the window start still count.
	return ev.Start.Equal(ev.End) && !ev.Start.Before(start)
}

// lastDay maps an (exclusive-looking) end to the day it is drawn on: an end
// exactly at midnight belongs to the previous day.
func lastDay(end, start time.Time) time.Time {
	if end.After(start) && end.Equal(dates.StartOfDay(end)) {
		return end.Add(-time.Nanosecond)
	}
	return end
}

func freeSlot(day []*Slot) int {
	for i, s := range day {
		if s == nil {
			return i
		}
	}
	return len(day)
}

// spanFrom counts the cells from day index d through to, cut at the end of
// d's week row.
func spanFrom(d, to int, date time.Time, weekStart time.Weekday) int {
	rowLeft := 7 - (int(date.Weekday())-int(weekStart)+7)%7
	return min(to-d+1, rowLeft)
}
