// Package source provides backends for the event fetch RPC: an HTTP JSON
// service, ICS feeds and CalDAV collections, and a router that sends each
// calendar id to its backend.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dashcal/internal/events"
	"dashcal/internal/model"
)

var ErrUnknownCalendar = errors.New("unknown calendar")

// Router dispatches fetches by calendar id. Ids without a route go to
// Default.
type Router struct {
	mu      sync.RWMutex
	routes  map[string]events.Fetcher
	Default events.Fetcher
}

func NewRouter(def events.Fetcher) *Router {
	return &Router{routes: make(map[string]events.Fetcher), Default: def}
}

// Handle routes calendarID to f, replacing an existing route.
func (r *Router) Handle(calendarID string, f events.Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[calendarID] = f
}

// Routes lists the explicitly routed ids.
func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.routes))
	for id := range r.routes {
		ids = append(ids, id)
	}
	return ids
}

func (r *Router) Fetch(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawEntry, error) {
	r.mu.RLock()
	f, ok := r.routes[calendarID]
	r.mu.RUnlock()
	if !ok {
		f = r.Default
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCalendar, calendarID)
	}
	return f.Fetch(ctx, calendarID, start, end)
}

var _ events.Fetcher = (*Router)(nil)
