package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "dashcal/internal/log"
)

// VEvent is one parsed VEVENT, before recurrence expansion.
type VEvent struct {
	UID string
	Seq int

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on overrides of a single recurring instance.
	RecurrenceID *time.Time
}

// IsOverride reports whether the VEVENT replaces one recurring instance.
func (v VEvent) IsOverride() bool {
	return v.RecurrenceID != nil
}

// Parse reads an ICS payload. Date-only values are read in loc. VEVENTs
// that cannot be read are logged and skipped.
func Parse(feed Feed, data []byte, loc *time.Location) ([]VEvent, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("feed %s: empty ICS body", feed.ID)
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("feed %s parse: %w", feed.ID, err)
	}

	out := make([]VEvent, 0)
	for _, comp := range cal.Events() {
		ev, err := parseVEvent(comp, loc)
		if err != nil {
			appLog.Warn("skipping vevent", "id", feed.ID, "err", err)
			continue
		}
		out = append(out, ev)
	}
	appLog.Debug("ics parse completed", "id", feed.ID, "vevents", len(out))
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (VEvent, error) {
	var out VEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, fmt.Errorf("uid %s: missing DTSTART", out.UID)
	}
	out.AllDay = isDateValue(dtStart)

	if out.AllDay {
		start, err := ve.GetAllDayStartAt()
		if err != nil {
			return out, fmt.Errorf("uid %s DTSTART: %w", out.UID, err)
		}
		out.Start = inLocation(start, loc)
		if end, err := ve.GetAllDayEndAt(); err == nil {
			out.End = inLocation(end, loc)
		} else {
			out.End = out.Start.AddDate(0, 0, 1)
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, fmt.Errorf("uid %s DTSTART: %w", out.UID, err)
		}
		out.Start = start
		if end, err := ve.GetEndAt(); err == nil {
			out.End = end
		} else {
			out.End = start
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, loc); err == nil {
			out.RecurrenceID = &t
		}
	}

	return out, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// inLocation keeps the wall date of t but moves it into loc.
func inLocation(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// parseICSTime reads the basic DATE, DATE-TIME and UTC forms used by
// EXDATE and RECURRENCE-ID. Floating values are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
