package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"dashcal/internal/ics"
	appLog "dashcal/internal/log"
	"dashcal/internal/model"
)

// CalDAV serves one calendar id from a CalDAV server. Collection is the
// display name of the collection to read; empty reads every collection
// under the user's home set.
type CalDAV struct {
	ID         string
	URL        string
	Username   string
	Password   string
	Collection string
	Location   *time.Location

	mu     sync.Mutex
	client *caldav.Client
	paths  []string
}

func (s *CalDAV) Fetch(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEntry, error) {
	client, paths, err := s.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("caldav %s: %w", calendarID, err)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{{
				Name: "VEVENT",
				Props: []string{
					"SUMMARY", "DTSTART", "DTEND", "DURATION", "UID",
					"DESCRIPTION", "LOCATION", "RRULE", "EXDATE", "RECURRENCE-ID",
				},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: start,
				End:   end,
			}},
		},
	}

	var parsed []ics.VEvent
	for _, path := range paths {
		objects, err := client.QueryCalendar(ctx, path, query)
		if err != nil {
			return nil, fmt.Errorf("caldav %s: query %s: %w", calendarID, path, err)
		}
		for _, obj := range objects {
			if obj.Data == nil {
				continue
			}
			for _, comp := range obj.Data.Children {
				if comp.Name != goical.CompEvent {
					continue
				}
				ev, err := vevent(comp, s.loc())
				if err != nil {
					appLog.Warn("skipping caldav event", "calendar", calendarID, "path", obj.Path, "err", err)
					continue
				}
				parsed = append(parsed, ev)
			}
		}
	}

	occs, err := ics.Expand(parsed, ics.Range{Start: start, End: end, Location: s.loc()})
	if err != nil {
		return nil, fmt.Errorf("caldav %s: %w", calendarID, err)
	}
	return ics.Entries(occs), nil
}

func (s *CalDAV) loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// discover resolves the collection paths once and reuses them.
func (s *CalDAV) discover(ctx context.Context) (*caldav.Client, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, s.paths, nil
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &basicAuthTransport{
			username: s.Username,
			password: s.Password,
			base:     http.DefaultTransport,
		},
	}
	client, err := caldav.NewClient(httpClient, s.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("create caldav client: %w", err)
	}
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, nil, fmt.Errorf("find calendar home: %w", err)
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, nil, fmt.Errorf("find calendars: %w", err)
	}

	var paths []string
	for _, c := range cals {
		if s.Collection == "" || strings.EqualFold(c.Name, s.Collection) {
			paths = append(paths, c.Path)
		}
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no collection named %q", s.Collection)
	}

	appLog.Info("caldav collections discovered", "id", s.ID, "collections", len(paths))
	s.client, s.paths = client, paths
	return client, paths, nil
}

// vevent reads a VEVENT component into the shape the ICS expander takes.
func vevent(comp *goical.Component, loc *time.Location) (ics.VEvent, error) {
	var ev ics.VEvent

	if p := comp.Props.Get(goical.PropUID); p != nil {
		ev.UID = p.Value
	}
	if ev.UID == "" {
		return ev, fmt.Errorf("missing UID")
	}
	if p := comp.Props.Get(goical.PropSummary); p != nil {
		ev.Summary = p.Value
	}
	if p := comp.Props.Get(goical.PropDescription); p != nil {
		ev.Description = p.Value
	}
	if p := comp.Props.Get(goical.PropLocation); p != nil {
		ev.Location = p.Value
	}

	p := comp.Props.Get(goical.PropDateTimeStart)
	if p == nil {
		return ev, fmt.Errorf("uid %s: missing DTSTART", ev.UID)
	}
	start, allDay, err := propTime(p, loc)
	if err != nil {
		return ev, fmt.Errorf("uid %s: parse start time: %w", ev.UID, err)
	}
	ev.Start, ev.AllDay = start, allDay

	switch {
	case comp.Props.Get(goical.PropDateTimeEnd) != nil:
		end, _, err := propTime(comp.Props.Get(goical.PropDateTimeEnd), loc)
		if err != nil {
			return ev, fmt.Errorf("uid %s: parse end time: %w", ev.UID, err)
		}
		ev.End = end
	case allDay:
		ev.End = start.AddDate(0, 0, 1)
	default:
		ev.End = start.Add(time.Hour)
	}

	if p := comp.Props.Get(goical.PropRecurrenceRule); p != nil {
		ev.RRule = p.Value
	}
	for _, ex := range comp.Props.Values(goical.PropExceptionDates) {
		for _, part := range strings.Split(ex.Value, ",") {
			single := ex
			single.Value = strings.TrimSpace(part)
			if t, _, err := propTime(&single, loc); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if p := comp.Props.Get(goical.PropRecurrenceID); p != nil {
		if t, _, err := propTime(p, loc); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}

// propTime reads a DATE or DATE-TIME property; date-only values are
// all-day.
func propTime(p *goical.Prop, loc *time.Location) (time.Time, bool, error) {
	if strings.EqualFold(p.Params.Get(goical.ParamValue), "DATE") || !strings.Contains(p.Value, "T") {
		t, err := time.ParseInLocation("20060102", p.Value, loc)
		return t, true, err
	}
	t, err := p.DateTime(loc)
	return t, false, err
}

// basicAuthTransport adds basic auth to HTTP requests.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}
