package source

import (
	"context"
	"fmt"
	"time"

	"dashcal/internal/ics"
	"dashcal/internal/model"
)

// ICS serves calendars backed by subscribed ICS feeds. Recurrences are
// expanded locally over the requested range.
type ICS struct {
	Fetcher  *ics.Fetcher
	Location *time.Location

	feeds map[string]ics.Feed
}

func NewICS(fetcher *ics.Fetcher, loc *time.Location, feeds []ics.Feed) *ICS {
	m := make(map[string]ics.Feed, len(feeds))
	for _, f := range feeds {
		m[f.ID] = f
	}
	return &ICS{Fetcher: fetcher, Location: loc, feeds: m}
}

// IDs lists the calendar ids served by feeds.
func (s *ICS) IDs() []string {
	ids := make([]string, 0, len(s.feeds))
	for id := range s.feeds {
		ids = append(ids, id)
	}
	return ids
}

func (s *ICS) Fetch(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEntry, error) {
	feed, ok := s.feeds[calendarID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCalendar, calendarID)
	}

	body, err := s.Fetcher.Fetch(ctx, feed)
	if err != nil {
		return nil, err
	}
	parsed, err := ics.Parse(feed, body.Data, s.Location)
	if err != nil {
		return nil, err
	}
	occs, err := ics.Expand(parsed, ics.Range{Start: start, End: end, Location: s.Location})
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feed.ID, err)
	}
	return ics.Entries(occs), nil
}
