package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// RawDate is a backend date value. Backends send either a bare string
// ("2025-03-10" or an RFC3339 date-time) or an object carrying dateTime or
// date.
type RawDate struct {
	Value string
}

func (d *RawDate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		d.Value = ""
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &d.Value)
	}

	var obj struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	switch {
	case obj.DateTime != "":
		d.Value = obj.DateTime
	case obj.Date != "":
		d.Value = obj.Date
	default:
		return errors.New("raw date: object has neither dateTime nor date")
	}
	return nil
}

func (d RawDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Value)
}

// RawEntry is one calendar entry as returned by the event fetch RPC.
type RawEntry struct {
	Summary      string  `json:"summary"`
	Start        RawDate `json:"start"`
	End          RawDate `json:"end"`
	Description  string  `json:"description,omitempty"`
	UID          string  `json:"uid,omitempty"`
	RecurrenceID string  `json:"recurrence_id,omitempty"`
	RRule        string  `json:"rrule,omitempty"`
}

// Metadata is opaque passthrough for detail displays.
type Metadata struct {
	Summary      string `json:"summary"`
	Description  string `json:"description,omitempty"`
	UID          string `json:"uid,omitempty"`
	RecurrenceID string `json:"recurrence_id,omitempty"`
	RRule        string `json:"rrule,omitempty"`
	RawStart     string `json:"raw_start"`
	RawEnd       string `json:"raw_end"`
}

// Event is the canonical calendar event. Values are immutable once
// normalized and the struct stays comparable, so layout code may look an
// event up by value.
type Event struct {
	// Key identifies a single occurrence; stable across refetches.
	Key string `json:"key"`

	Title string `json:"title"`

	// For all-day events Start is midnight of the first day and End is the
	// last instant of the final (inclusive) day.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	AllDay       bool `json:"all_day"`
	DaysInterval int  `json:"days_interval"`

	CalendarID string `json:"calendar_id"`
	Color      string `json:"color,omitempty"`

	Meta Metadata `json:"meta"`
}

// Spanning reports whether the event crosses more than one calendar day.
func (e Event) Spanning() bool {
	return e.DaysInterval > 1
}

// Window is a view window. End is the last represented instant of the
// final day.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies in [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// TimedPosition is the geometry of one event in a day's time grid.
// Top and Height are minutes (1px per minute), Left and Width percent.
type TimedPosition struct {
	Top    int     `json:"top"`
	Height int     `json:"height"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	ZIndex int     `json:"z_index"`
}

// Calendar is one configured calendar: the backend entity id plus an
// optional color override.
type Calendar struct {
	Entity string `yaml:"entity" json:"entity"`
	Color  string `yaml:"color,omitempty" json:"color,omitempty"`
}
