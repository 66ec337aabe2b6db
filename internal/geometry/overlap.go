package geometry

import (
	"math"
	"sort"
	"time"

	"dashcal/internal/dates"
	"dashcal/internal/model"
)

const minutesPerDay = 24 * 60

// AllDayPosition is the fixed geometry of an all-day event. It renders in
// its own row below every timed event.
var AllDayPosition = model.TimedPosition{Top: 0, Height: 30, Left: 0, Width: 100, ZIndex: 1}

// overlaps is the half-open interval test: touching events do not overlap.
func overlaps(a, b model.Event) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

type placed struct {
	idx     int // position in the caller's slice
	ev      model.Event
	col     int
	divisor int
}

// LayoutDay computes the position of every event of one day. The result is
// aligned with events.
//
// Timed events are walked in start order and take the lowest column whose
// previous occupant has already ended. Each event is then as wide as the
// densest point inside its own span allows, widened only as far as needed
// to keep overlapping neighbours from sharing horizontal space.
func LayoutDay(events []model.Event) []model.TimedPosition {
	out := make([]model.TimedPosition, len(events))

	timed := make([]placed, 0, len(events))
	for i, ev := range events {
		if ev.AllDay {
			out[i] = AllDayPosition
			continue
		}
		timed = append(timed, placed{idx: i, ev: ev})
	}

	sort.SliceStable(timed, func(i, j int) bool {
		a, b := timed[i].ev, timed[j].ev
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		// Longer first, then input order (stable).
		return a.End.After(b.End)
	})

	assignColumns(timed)
	for i := range timed {
		timed[i].divisor = localConcurrency(timed, i)
	}
	reconcile(timed)

	for _, p := range timed {
		width := 100 / float64(p.divisor)
		left := float64(p.col) * width
		top, height := verticalSpan(p.ev)
		out[p.idx] = model.TimedPosition{
			Top:    top,
			Height: height,
			Left:   left,
			Width:  width,
			ZIndex: 2 + int(math.Floor(left)),
		}
	}
	return out
}

// Layout returns the position of target among the events of its day.
// target is matched by Key when set, otherwise by value. An event missing
// from dayEvents is laid out alone.
func Layout(target model.Event, dayEvents []model.Event) model.TimedPosition {
	if target.AllDay {
		return AllDayPosition
	}
	for i, ev := range dayEvents {
		if (target.Key != "" && ev.Key == target.Key) || ev == target {
			return LayoutDay(dayEvents)[i]
		}
	}
	return LayoutDay([]model.Event{target})[0]
}

// assignColumns does first-fit interval colouring over events sorted by
// start. Ends inside a column are monotonic, so tracking the last end per
// column is enough.
func assignColumns(timed []placed) {
	var colEnd []time.Time
	for i := range timed {
		ev := timed[i].ev
		col := -1
		for c, end := range colEnd {
			if !end.After(ev.Start) {
				col = c
				break
			}
		}
		if col == -1 {
			col = len(colEnd)
			colEnd = append(colEnd, ev.End)
		} else {
			colEnd[col] = ev.End
		}
		timed[i].col = col
	}
}

// localConcurrency is the peak number of simultaneously active events
// inside the span of timed[i], counting timed[i] itself.
func localConcurrency(timed []placed, i int) int {
	target := timed[i].ev

	type edge struct {
		at    time.Time
		delta int
	}
	edges := []edge{{target.Start, 1}, {target.End, -1}}
	for j, p := range timed {
		if j == i || !overlaps(target, p.ev) {
			continue
		}
		edges = append(edges,
			edge{dates.Max(p.ev.Start, target.Start), 1},
			edge{dates.Min(p.ev.End, target.End), -1},
		)
	}
	sort.Slice(edges, func(a, b int) bool {
		if !edges[a].at.Equal(edges[b].at) {
			return edges[a].at.Before(edges[b].at)
		}
		// Ends close before starts at the same instant.
		return edges[a].delta < edges[b].delta
	})

	cur, peak := 0, 1
	for _, e := range edges {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	// A column index never exceeds the events sharing the start instant,
	// but the divisor must still leave room for it.
	if timed[i].col+1 > peak {
		peak = timed[i].col + 1
	}
	return peak
}

// reconcile raises divisors until no two overlapping events share
// horizontal space. Divisors only grow and are bounded by the event count,
// so the loop terminates.
func reconcile(timed []placed) {
	for changed := true; changed; {
		changed = false
		for i := range timed {
			for j := i + 1; j < len(timed); j++ {
				a, b := &timed[i], &timed[j]
				if a.divisor == b.divisor || !overlaps(a.ev, b.ev) {
					continue
				}
				if !rangesIntersect(a, b) {
					continue
				}
				d := max(a.divisor, b.divisor)
				a.divisor, b.divisor = d, d
				changed = true
			}
		}
	}
}

// rangesIntersect compares [col/div, (col+1)/div) of both events exactly
// by cross-multiplying.
func rangesIntersect(a, b *placed) bool {
	aLo, aHi := a.col*b.divisor, (a.col+1)*b.divisor
	bLo, bHi := b.col*a.divisor, (b.col+1)*a.divisor
	return aLo < bHi && bLo < aHi
}

// verticalSpan returns top and height in minutes, clipping at the end of
// the event's start day.
func verticalSpan(ev model.Event) (int, int) {
	top := dates.MinutesOfDay(ev.Start)
	dayEnd := dates.AddDays(dates.StartOfDay(ev.Start), 1)
	end := dates.Min(ev.End, dayEnd)

	height := int(end.Sub(ev.Start) / time.Minute)
	if top+height > minutesPerDay {
		height = minutesPerDay - top
	}
	if height < 0 {
		height = 0
	}
	return top, height
}

// EventsForDay picks what a day cell shows: timed events starting on day
// and all-day events covering it. All-day events come first, the rest by
// minutes of day.
func EventsForDay(events []model.Event, day time.Time) []model.Event {
	dayStart := dates.StartOfDay(day)
	dayEnd := dates.EndOfDay(day)

	out := make([]model.Event, 0)
	for _, ev := range events {
		if ev.AllDay {
			if !ev.Start.After(dayEnd) && !ev.End.Before(dayStart) {
				out = append(out, ev)
			}
			continue
		}
		if dates.IsSameDay(ev.Start, day) {
			out = append(out, ev)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AllDay != out[j].AllDay {
			return out[i].AllDay
		}
		return minuteKey(out[i]) < minuteKey(out[j])
	})
	return out
}

func minuteKey(ev model.Event) int {
	if ev.AllDay {
		return 0
	}
	return dates.MinutesOfDay(ev.Start)
}
