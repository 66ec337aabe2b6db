package events

import (
	"context"
	"sync"
	"time"

	appLog "dashcal/internal/log"
	"dashcal/internal/model"
)

// Fetcher is the event fetch RPC: raw entries of one calendar between
// start and end.
type Fetcher interface {
	Fetch(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEntry, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEntry, error)

func (f FetcherFunc) Fetch(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEntry, error) {
	return f(ctx, calendarID, start, end)
}

// Result is the joined outcome of fetching every configured calendar.
type Result struct {
	Events []model.Event
	// Failed lists the ids of calendars whose fetch returned an error, in
	// configuration order.
	Failed []string
}

// Usable reports whether the result may replace a previous event list:
// either nothing failed or something came back.
func (r Result) Usable() bool {
	return len(r.Failed) == 0 || len(r.Events) > 0
}

// Collector fans a window fetch out to every calendar and normalizes the
// answers.
type Collector struct {
	Fetcher  Fetcher
	Location *time.Location

	// OnFetch, if set, is called once per calendar when its fetch settles.
	// Calls may happen concurrently.
	OnFetch func(calendarID string, took time.Duration, events int, err error)
}

type calendarResult struct {
	events []model.Event
	err    error
}

// Collect fetches all calendars concurrently and waits for every one of
// them to settle. A failing or slow calendar never drops the others'
// events; failures are logged and listed in Result.Failed.
func (c *Collector) Collect(ctx context.Context, cals []model.Calendar, w model.Window) Result {
	results := make([]calendarResult, len(cals))

	var wg sync.WaitGroup
	for i, cal := range cals {
		wg.Add(1)
		go func(i int, cal model.Calendar) {
			defer wg.Done()
			results[i] = c.fetchOne(ctx, cal, i, w)
		}(i, cal)
	}
	wg.Wait()

	var out Result
	for i, r := range results {
		if r.err != nil {
			out.Failed = append(out.Failed, cals[i].Entity)
			continue
		}
		out.Events = append(out.Events, r.events...)
	}
	if out.Events == nil {
		out.Events = []model.Event{}
	}

	if len(out.Failed) > 0 {
		appLog.Warn("calendar fetch partially failed",
			"failed", out.Failed,
			"calendars", len(cals),
			"events", len(out.Events),
		)
	}
	return out
}

func (c *Collector) fetchOne(ctx context.Context, cal model.Calendar, index int, w model.Window) calendarResult {
	started := time.Now()
	raw, err := c.Fetcher.Fetch(ctx, cal.Entity, w.Start, w.End)
	if err != nil {
		appLog.Error("calendar fetch failed", err, "calendar", cal.Entity)
		c.observe(cal.Entity, time.Since(started), 0, err)
		return calendarResult{err: err}
	}

	evs, errs := Normalize(raw, cal, index, c.Location)
	for _, e := range errs {
		appLog.Error("skipping calendar entry", e, "calendar", cal.Entity)
	}
	appLog.Debug("calendar fetch done", "calendar", cal.Entity, "raw", len(raw), "events", len(evs))
	c.observe(cal.Entity, time.Since(started), len(evs), nil)
	return calendarResult{events: evs}
}

func (c *Collector) observe(id string, took time.Duration, n int, err error) {
	if c.OnFetch != nil {
		c.OnFetch(id, took, n, err)
	}
}
