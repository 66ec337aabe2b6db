package coordinator

import (
	"sort"
	"time"

	"dashcal/internal/config"
	"dashcal/internal/dates"
	"dashcal/internal/geometry"
	"dashcal/internal/model"
	"dashcal/internal/weather"
)

// Snapshot is the laid-out state of the current view. Exactly one of
// Month, Week and Agenda is set.
type Snapshot struct {
	View      geometry.ViewType `json:"view"`
	Focus     time.Time         `json:"focus"`
	Window    model.Window      `json:"window"`
	Generated time.Time         `json:"generated"`
	Failed    []string          `json:"failed"`

	ShowControls   bool   `json:"show_interactive_controls"`
	ToggleLocation string `json:"view_toggle_location"`
	TextSize       int    `json:"text_size,omitempty"`

	Month  *MonthSnapshot  `json:"month,omitempty"`
	Week   *WeekSnapshot   `json:"week,omitempty"`
	Agenda *AgendaSnapshot `json:"agenda,omitempty"`
}

// Day is one day cell.
type Day struct {
	Date  time.Time `json:"date"`
	Today bool      `json:"today"`
	// Outside marks month grid days that belong to a neighbouring month.
	Outside bool `json:"outside,omitempty"`

	// Events is the day's list when bars are not spanned: all-day first,
	// then by start.
	Events []model.Event `json:"events,omitempty"`
	// AllDay and Timed split the list for the week time grid.
	AllDay []model.Event `json:"all_day,omitempty"`
	Timed  []TimedEvent  `json:"timed,omitempty"`

	Forecast *weather.Forecast `json:"forecast,omitempty"`
}

// TimedEvent is an event with its time grid geometry.
type TimedEvent struct {
	Event    model.Event         `json:"event"`
	Position model.TimedPosition `json:"position"`
}

// WeekRow is one row of the month grid. Slots is set when multi-day
// events are drawn as bars.
type WeekRow struct {
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Days      []Day            `json:"days"`
	Slots     geometry.SlotMap `json:"slots,omitempty"`
	SlotCount int              `json:"slot_count,omitempty"`
}

type MonthSnapshot struct {
	Weeks []WeekRow `json:"weeks"`
}

type WeekSnapshot struct {
	Days []Day `json:"days"`
	// Slots holds all-day bars when multi-day events are spanned.
	Slots     geometry.SlotMap `json:"slots,omitempty"`
	SlotCount int              `json:"slot_count,omitempty"`
}

type AgendaSnapshot struct {
	Days     []Day         `json:"days"`
	NextWeek []model.Event `json:"next_week"`
}

// Snapshot lays out the current view as of now.
func (c *Coordinator) Snapshot(now time.Time) (Snapshot, error) {
	c.mu.Lock()
	cfg, view, focus := c.cfg, c.view, c.focus
	c.mu.Unlock()

	now = now.In(c.loc)
	opts := cfg.Options(view, now)
	w, err := geometry.ComputeRange(view, focus, opts)
	if err != nil {
		return Snapshot{}, err
	}

	b := builder{
		cfg:      cfg,
		events:   c.Events(),
		forecast: c.Forecasts(),
		now:      now,
	}
	snap := Snapshot{
		View:           view,
		Focus:          focus,
		Window:         w,
		Generated:      now,
		Failed:         c.Failed(),
		ShowControls:   cfg.ShowControls,
		ToggleLocation: cfg.ToggleLocation,
		TextSize:       cfg.TextSize,
	}

	switch view {
	case geometry.ViewMonth:
		rows, err := geometry.MonthGrid(focus, opts)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Month = b.month(rows, dates.Max(focus, now))
	case geometry.ViewWeek:
		snap.Week = b.week(w)
	case geometry.ViewAgenda:
		snap.Agenda = b.agenda(focus)
	}
	return snap, nil
}

type builder struct {
	cfg      config.Resolved
	events   []model.Event
	forecast weather.Index
	now      time.Time
}

func (b builder) day(date time.Time) Day {
	d := Day{Date: date, Today: dates.IsSameDay(date, b.now)}
	if f, ok := b.forecast.For(date); ok {
		d.Forecast = &f
	}
	return d
}

func (b builder) month(rows []model.Window, shown time.Time) *MonthSnapshot {
	span := b.cfg.SpanDaysFor(geometry.ViewMonth)
	ws := b.cfg.WeekStartFor(geometry.ViewMonth)

	var slots []geometry.SlotMap
	if span && len(rows) > 0 {
		grid := model.Window{Start: rows[0].Start, End: rows[len(rows)-1].End}
		slots = geometry.DistributeWeeks(b.events, grid, ws)
	}

	out := &MonthSnapshot{Weeks: make([]WeekRow, 0, len(rows))}
	for i, r := range rows {
		row := WeekRow{Start: r.Start, End: r.End}
		for _, date := range geometry.Days(r) {
			d := b.day(date)
			d.Outside = !dates.IsSameMonth(date, shown)
			if !span {
				d.Events = geometry.EventsForDay(b.events, date)
			}
			row.Days = append(row.Days, d)
		}
		if i < len(slots) {
			row.Slots = slots[i]
			row.SlotCount = slots[i].SlotCount()
		}
		out.Weeks = append(out.Weeks, row)
	}
	return out
}

func (b builder) week(w model.Window) *WeekSnapshot {
	span := b.cfg.SpanDaysFor(geometry.ViewWeek)
	out := &WeekSnapshot{}

	for _, date := range geometry.Days(w) {
		d := b.day(date)
		list := geometry.EventsForDay(b.events, date)

		var timed []model.Event
		for _, ev := range list {
			if ev.AllDay {
				if !span {
					d.AllDay = append(d.AllDay, ev)
				}
				continue
			}
			timed = append(timed, ev)
		}
		pos := geometry.LayoutDay(timed)
		for i, ev := range timed {
			d.Timed = append(d.Timed, TimedEvent{Event: ev, Position: pos[i]})
		}
		out.Days = append(out.Days, d)
	}

	if span {
		var allDay []model.Event
		for _, ev := range b.events {
			if ev.AllDay {
				allDay = append(allDay, ev)
			}
		}
		out.Slots = geometry.Distribute(allDay, w.Start, w.End, b.cfg.WeekStartFor(geometry.ViewWeek))
		out.SlotCount = out.Slots.SlotCount()
	}
	return out
}

func (b builder) agenda(focus time.Time) *AgendaSnapshot {
	ws := b.cfg.WeekStartFor(geometry.ViewAgenda)
	start := dates.StartOfWeek(focus, ws)
	week := model.Window{Start: start, End: dates.EndOfWeek(focus, ws)}

	out := &AgendaSnapshot{NextWeek: nextWeek(b.events, dates.AddDays(start, 7), ws)}
	for _, date := range geometry.Days(week) {
		d := b.day(date)
		d.Events = geometry.EventsForDay(b.events, date)
		out.Days = append(out.Days, d)
	}
	return out
}

// nextWeek lists events touching the week starting at start, by start,
// all-day before timed on equal starts, then by end.
func nextWeek(evs []model.Event, start time.Time, ws time.Weekday) []model.Event {
	end := dates.EndOfWeek(start, ws)
	w := model.Window{Start: start, End: end}

	out := make([]model.Event, 0)
	for _, ev := range evs {
		if w.Contains(ev.Start) || w.Contains(ev.End) || (!ev.Start.After(start) && !ev.End.Before(end)) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.AllDay != b.AllDay {
			return a.AllDay
		}
		return a.End.Before(b.End)
	})
	return out
}
