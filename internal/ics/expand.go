package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"dashcal/internal/dates"
	appLog "dashcal/internal/log"
	"dashcal/internal/model"
)

const defaultMaxOccurrences = 5000

// Occurrence is one concrete instance of a VEVENT.
type Occurrence struct {
	UID          string
	RecurrenceID string
	Summary      string
	Description  string
	Location     string
	RRule        string
	AllDay       bool
	// End is exclusive; for all-day instances it is midnight after the
	// last day.
	Start time.Time
	End   time.Time
}

// Range bounds an expansion. Occurrences intersecting [Start, End] are
// kept, converted into Location.
type Range struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
	// MaxPerEvent caps instances of one UID; zero means 5000.
	MaxPerEvent int
}

// Expand turns parsed VEVENTs into occurrences inside r, applying RRULE,
// EXDATE and RECURRENCE-ID overrides.
func Expand(events []VEvent, r Range) ([]Occurrence, error) {
	if r.End.Before(r.Start) {
		return nil, errors.New("expand: range end before start")
	}
	if r.Location == nil {
		r.Location = time.Local
	}
	if r.MaxPerEvent <= 0 {
		r.MaxPerEvent = defaultMaxOccurrences
	}

	var order []string
	base := make(map[string][]VEvent)
	overrides := make(map[string][]VEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := base[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		base[ev.UID] = append(base[ev.UID], ev)
	}

	out := make([]Occurrence, 0)
	for _, uid := range order {
		for _, ev := range base[uid] {
			var occ []Occurrence
			if ev.RRule == "" {
				occ = expandSingle(ev, overrides[uid], r)
			} else {
				var capped bool
				occ, capped = expandRecurring(ev, overrides[uid], r)
				if capped {
					appLog.Warn("recurrence expansion truncated", "uid", uid, "cap", r.MaxPerEvent)
				}
			}
			out = append(out, occ...)
		}
	}
	return out, nil
}

func expandSingle(ev VEvent, overrides []VEvent, r Range) []Occurrence {
	start, end := ev.Start, ev.End
	if o, ok := findOverride(overrides, start); ok {
		ev, start, end = o, o.Start, o.End
	}
	if !intersects(start, end, r) {
		return nil
	}
	return []Occurrence{occurrence(ev, start, end, r.Location)}
}

func expandRecurring(ev VEvent, overrides []VEvent, r Range) ([]Occurrence, bool) {
	rule, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RRule)
		return nil, false
	}
	rule.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event length so instances that started
	// before the range but still run into it are kept.
	length := ev.End.Sub(ev.Start)
	from := r.Start.Add(-length).In(ev.Start.Location())
	to := r.End.In(ev.Start.Location())
	starts := set.Between(from, to, true)

	capped := false
	if len(starts) > r.MaxPerEvent {
		starts = starts[:r.MaxPerEvent]
		capped = true
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		e := s.Add(length)
		if ev.AllDay {
			s = dates.StartOfDay(s)
			e = s.AddDate(0, 0, max(1, dates.DaysBetween(ev.Start, ev.End)))
		}
		inst := ev
		if o, ok := findOverride(overrides, s); ok {
			inst, s, e = o, o.Start, o.End
		} else {
			id := s
			inst.RecurrenceID = &id
		}
		if !intersects(s, e, r) {
			continue
		}
		out = append(out, occurrence(inst, s, e, r.Location))
	}
	return out, capped
}

func findOverride(overrides []VEvent, start time.Time) (VEvent, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID.Equal(start) {
			return ov, true
		}
	}
	return VEvent{}, false
}

// intersects treats the end as exclusive except for zero-length events.
func intersects(start, end time.Time, r Range) bool {
	if end.Equal(start) {
		return !start.Before(r.Start) && !start.After(r.End)
	}
	return end.After(r.Start) && !start.After(r.End)
}

func occurrence(ev VEvent, start, end time.Time, loc *time.Location) Occurrence {
	occ := Occurrence{
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		RRule:       ev.RRule,
		AllDay:      ev.AllDay,
		Start:       start.In(loc),
		End:         end.In(loc),
	}
	if ev.AllDay {
		// Keep the wall dates; only the zone changes.
		occ.Start = inLocation(start, loc)
		occ.End = inLocation(end, loc)
	}
	if ev.RecurrenceID != nil {
		occ.RecurrenceID = ev.RecurrenceID.UTC().Format("20060102T150405Z")
	}
	return occ
}

// Entry renders the occurrence in the event fetch RPC's wire shape:
// date-only strings with an exclusive end for all-day instances, RFC3339
// otherwise.
func (o Occurrence) Entry() model.RawEntry {
	e := model.RawEntry{
		Summary:      o.Summary,
		Description:  o.Description,
		UID:          o.UID,
		RecurrenceID: o.RecurrenceID,
		RRule:        o.RRule,
	}
	if o.AllDay {
		e.Start.Value = o.Start.Format(dates.DateLayout)
		e.End.Value = o.End.Format(dates.DateLayout)
	} else {
		e.Start.Value = o.Start.Format(time.RFC3339)
		e.End.Value = o.End.Format(time.RFC3339)
	}
	return e
}

// Entries maps Entry over occs.
func Entries(occs []Occurrence) []model.RawEntry {
	out := make([]model.RawEntry, len(occs))
	for i, o := range occs {
		out[i] = o.Entry()
	}
	return out
}
