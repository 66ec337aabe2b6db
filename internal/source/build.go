package source

import (
	"time"

	"dashcal/internal/config"
	"dashcal/internal/ics"
	appLog "dashcal/internal/log"
)

// FromConfig builds the router for cfg: ICS and CalDAV calendars get their
// own routes, everything else goes to the JSON backend when one is set.
func FromConfig(cfg *config.Config, loc *time.Location) *Router {
	var def *RPC
	if cfg.Backend.URL != "" {
		def = NewRPC(cfg.Backend.URL, cfg.Backend.Token)
	}

	var r *Router
	if def != nil {
		r = NewRouter(def)
	} else {
		r = NewRouter(nil)
	}

	if len(cfg.ICS) > 0 {
		feeds := make([]ics.Feed, 0, len(cfg.ICS))
		for _, c := range cfg.ICS {
			feeds = append(feeds, ics.Feed{ID: c.ID, URL: c.URL})
		}
		feedSource := NewICS(ics.NewFetcher(cfg.CacheDir, nil), loc, feeds)
		for _, id := range feedSource.IDs() {
			r.Handle(id, feedSource)
		}
	}

	for _, c := range cfg.CalDAV {
		r.Handle(c.ID, &CalDAV{
			ID:         c.ID,
			URL:        c.URL,
			Username:   c.Username,
			Password:   c.Password,
			Collection: c.Collection,
			Location:   loc,
		})
	}

	appLog.Info("calendar sources configured",
		"ics", len(cfg.ICS),
		"caldav", len(cfg.CalDAV),
		"backend", def != nil,
	)
	return r
}
