// Package events turns raw backend entries into canonical calendar events
// and collects them across calendars.
package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dashcal/internal/dates"
	"dashcal/internal/model"
)

var ErrMalformedDate = errors.New("malformed date")

// localLayouts are accepted when a backend sends a date-time without an
// offset; they are read in the display location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// Normalize converts the entries of one calendar. index is the calendar's
// position in the configured list and seeds its default color. Entries
// with unparseable dates are skipped and reported in the error slice.
func Normalize(raw []model.RawEntry, cal model.Calendar, index int, loc *time.Location) ([]model.Event, []error) {
	if loc == nil {
		loc = time.Local
	}
	color := ResolveColor(cal.Color, index)

	out := make([]model.Event, 0, len(raw))
	var errs []error
	for i, entry := range raw {
		ev, err := normalizeEntry(entry, cal.Entity, color, loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("calendar %s entry %d (%q): %w", cal.Entity, i, entry.Summary, err))
			continue
		}
		out = append(out, ev)
	}
	return out, errs
}

func normalizeEntry(entry model.RawEntry, calendarID, color string, loc *time.Location) (model.Event, error) {
	rawStart, startDateOnly, err := parseRawDate(entry.Start.Value, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("start: %w", err)
	}
	rawEnd, _, err := parseRawDate(entry.End.Value, loc)
	if err != nil {
		return model.Event{}, fmt.Errorf("end: %w", err)
	}

	ev := model.Event{
		Title:      entry.Summary,
		AllDay:     startDateOnly,
		CalendarID: calendarID,
		Color:      color,
		Meta: model.Metadata{
			Summary:      entry.Summary,
			Description:  entry.Description,
			UID:          entry.UID,
			RecurrenceID: entry.RecurrenceID,
			RRule:        entry.RRule,
			RawStart:     entry.Start.Value,
			RawEnd:       entry.End.Value,
		},
	}

	if ev.AllDay {
		// Backend end dates are exclusive of the final day.
		ev.Start = dates.StartOfDay(rawStart)
		ev.End = dates.EndOfDay(dates.AddDays(rawEnd, -1))
		if ev.End.Before(ev.Start) {
			ev.End = dates.EndOfDay(ev.Start)
		}
	} else {
		ev.Start = rawStart
		ev.End = rawEnd
		if ev.End.Before(ev.Start) {
			ev.End = ev.Start
		}
	}

	ev.DaysInterval = max(1, dates.DaysBetween(ev.Start, rawEnd))
	ev.Key = instanceKey(calendarID, entry, ev.Start)
	return ev, nil
}

// parseRawDate reads a backend date. A 10-character value is a date-only
// (all-day) boundary.
func parseRawDate(v string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, fmt.Errorf("%w: empty", ErrMalformedDate)
	}
	if len(v) == len(dates.DateLayout) {
		t, err := time.ParseInLocation(dates.DateLayout, v, loc)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: %q", ErrMalformedDate, v)
		}
		return t, true, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.In(loc), false, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: %q", ErrMalformedDate, v)
}

// instanceKey derives a stable id for one occurrence so refetches of the
// same event keep their identity.
func instanceKey(calendarID string, entry model.RawEntry, start time.Time) string {
	name := strings.Join([]string{
		calendarID,
		entry.UID,
		entry.RecurrenceID,
		start.UTC().Format(time.RFC3339Nano),
		entry.Summary,
	}, "\x00")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Recolor returns a copy of evs with colors resolved against cals. Events
// of calendars no longer configured keep their color.
func Recolor(evs []model.Event, cals []model.Calendar) []model.Event {
	colors := make(map[string]string, len(cals))
	for i, c := range cals {
		colors[c.Entity] = ResolveColor(c.Color, i)
	}
	out := make([]model.Event, len(evs))
	for i, ev := range evs {
		if c, ok := colors[ev.CalendarID]; ok {
			ev.Color = c
		}
		out[i] = ev
	}
	return out
}
