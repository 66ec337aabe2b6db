// Package coordinator owns the live calendar: the resolved configuration,
// which view is shown and where it is focused, the current event list and
// the timers and subscriptions that keep it fresh.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"dashcal/internal/clock"
	"dashcal/internal/config"
	"dashcal/internal/dates"
	"dashcal/internal/events"
	"dashcal/internal/geometry"
	appLog "dashcal/internal/log"
	"dashcal/internal/metrics"
	"dashcal/internal/model"
	"dashcal/internal/refresh"
	"dashcal/internal/subscribe"
	"dashcal/internal/weather"
)

var ErrStopped = errors.New("coordinator stopped")

// Options are the collaborators of a Coordinator. Only Fetcher is
// required.
type Options struct {
	Fetcher  events.Fetcher
	Clock    clock.Clock
	Location *time.Location
	// Subscriber carries weather forecast pushes; nil disables weather.
	Subscriber subscribe.Subscriber
	Metrics    *metrics.Metrics
}

type Coordinator struct {
	fetcher events.Fetcher
	clock   clock.Clock
	loc     *time.Location
	sub     subscribe.Subscriber
	metrics *metrics.Metrics

	// life serializes Start, Stop and the timer and subscription changes
	// of SetConfig. It is taken before mu, never after.
	life    sync.Mutex
	ctx     context.Context
	sched   *refresh.Scheduler
	weather *subscribe.Retrier

	mu      sync.Mutex
	cfg     config.Resolved
	view    geometry.ViewType
	focus   time.Time
	running bool
	stopped bool
	issued  uint64
	// settled is the newest fetch that has completed, applied or not.
	settled uint64
	fetched fetchState

	events   atomic.Pointer[[]model.Event]
	failed   atomic.Pointer[[]string]
	forecast atomic.Pointer[weather.Index]
}

// fetchState records what the current event list was fetched for.
type fetchState struct {
	ids    []string
	window model.Window
}

func New(cfg config.Resolved, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	c := &Coordinator{
		fetcher: opts.Fetcher,
		clock:   opts.Clock,
		loc:     opts.Location,
		sub:     opts.Subscriber,
		metrics: opts.Metrics,
		ctx:     context.Background(),
		cfg:     cfg,
		view:    cfg.View,
		focus:   dates.StartOfDay(opts.Clock.Now().In(opts.Location)),
	}
	empty := []model.Event{}
	c.events.Store(&empty)
	c.failed.Store(&[]string{})
	c.sched = refresh.NewScheduler(opts.Clock, c.scheduledRefresh)
	return c
}

// Handle is a running coordinator lifecycle.
type Handle struct {
	c    *Coordinator
	once sync.Once
}

// Stop tears the lifecycle down. Idempotent.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.c.stop)
}

// Start fetches once, then arms the refresh schedule and, when enabled,
// the weather subscription. A failed first fetch is logged, not
// returned; the schedule retries it.
func (c *Coordinator) Start(ctx context.Context) (*Handle, error) {
	c.life.Lock()
	defer c.life.Unlock()

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, errors.New("coordinator already running")
	}
	if c.stopped {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	cfg := c.cfg
	c.mu.Unlock()

	plan, err := cfg.Plan()
	if err != nil {
		return nil, err
	}

	// Scheduled work outlives the caller's deadline; teardown goes through
	// Stop, not cancellation.
	c.ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	if _, err := c.Refresh(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}
	c.sched.Start(plan)
	c.startWeather(cfg)

	return &Handle{c: c}, nil
}

// Stop ends h; shorthand for h.Stop().
func (c *Coordinator) Stop(h *Handle) {
	h.Stop()
}

func (c *Coordinator) stop() {
	c.life.Lock()
	defer c.life.Unlock()

	c.mu.Lock()
	c.running = false
	c.stopped = true
	c.mu.Unlock()

	c.sched.Stop()
	c.stopWeather()
	appLog.Info("coordinator stopped")
}

func (c *Coordinator) scheduledRefresh() {
	c.metrics.RefreshFired()
	c.life.Lock()
	ctx := c.ctx
	c.life.Unlock()
	if _, err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrStopped) {
		appLog.Error("scheduled refresh failed", err)
	}
}

// Refresh fetches the current view's window from every calendar. The
// result replaces the event list only if it is usable and no newer
// fetch has settled meanwhile; otherwise the list is kept.
func (c *Coordinator) Refresh(ctx context.Context) (events.Result, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return events.Result{}, ErrStopped
	}
	cfg, view, focus := c.cfg, c.view, c.focus
	if len(cfg.Calendars) == 0 {
		c.mu.Unlock()
		return events.Result{Events: []model.Event{}}, nil
	}
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	now := c.clock.Now().In(c.loc)
	w, err := geometry.ComputeRange(view, focus, cfg.Options(view, now))
	if err != nil {
		return events.Result{}, err
	}

	collector := events.Collector{
		Fetcher:  c.fetcher,
		Location: c.loc,
		OnFetch: func(id string, took time.Duration, _ int, err error) {
			c.metrics.ObserveFetch(id, took, err)
		},
	}
	res := collector.Collect(ctx, cfg.Calendars, w)
	c.apply(seq, res, fetchState{ids: sortedIDs(cfg), window: w})

	if !res.Usable() {
		return res, fmt.Errorf("all %d calendars failed", len(res.Failed))
	}
	return res, nil
}

func (c *Coordinator) apply(seq uint64, res events.Result, st fetchState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.stopped:
		appLog.Debug("dropping fetch result after stop", "seq", seq)
		return
	case seq <= c.settled:
		c.metrics.StaleResult()
		appLog.Debug("dropping stale fetch result", "seq", seq, "settled", c.settled)
		return
	}
	c.settled = seq

	if !res.Usable() {
		appLog.Warn("every calendar failed, keeping previous events", "failed", res.Failed)
		failed := slices.Clone(res.Failed)
		c.failed.Store(&failed)
		return
	}

	// Colors follow the configuration current at apply time, which may
	// have changed while the fetch was in flight.
	evs := events.Recolor(res.Events, c.cfg.Calendars)
	failed := slices.Clone(res.Failed)
	if failed == nil {
		failed = []string{}
	}
	c.events.Store(&evs)
	c.failed.Store(&failed)
	c.fetched = st
	c.metrics.SetEvents(len(evs))
	appLog.Info("events updated", "events", len(evs), "failed", len(failed), "seq", seq)
}

// invalidate makes every in-flight fetch stale.
func (c *Coordinator) invalidate() {
	c.settled = c.issued
}

// SetConfig swaps the card configuration:
//   - an empty calendar list clears the events;
//   - a changed interval or cron rebuilds the refresh schedule;
//   - a changed weather setting restarts the forecast subscription;
//   - the same calendars over a covered window only recolor;
//   - anything else refetches.
func (c *Coordinator) SetConfig(ctx context.Context, next config.Resolved) error {
	c.life.Lock()
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.life.Unlock()
		return ErrStopped
	}
	prev := c.cfg
	c.cfg = next
	c.view = next.View
	running := c.running

	if len(next.Calendars) == 0 {
		c.invalidate()
		empty := []model.Event{}
		c.events.Store(&empty)
		c.failed.Store(&[]string{})
		c.fetched = fetchState{}
		c.metrics.SetEvents(0)
	}
	refetch := len(next.Calendars) > 0 && c.needsFetchLocked()
	if !refetch {
		evs := events.Recolor(*c.events.Load(), next.Calendars)
		c.events.Store(&evs)
	}
	c.mu.Unlock()

	var planErr error
	if running {
		if prev.RefreshMinutes != next.RefreshMinutes || prev.RefreshCron != next.RefreshCron {
			if plan, err := next.Plan(); err != nil {
				planErr = err
			} else {
				c.sched.Reconfigure(plan)
			}
		}
		if prev.Weather != next.Weather {
			c.stopWeather()
			c.startWeather(next)
		}
	}
	c.life.Unlock()

	if planErr != nil {
		return planErr
	}
	if refetch {
		_, err := c.Refresh(ctx)
		return err
	}
	return nil
}

// needsFetchLocked reports whether the event list no longer covers the
// configured calendars and the visible window.
func (c *Coordinator) needsFetchLocked() bool {
	if !slices.Equal(c.fetched.ids, sortedIDs(c.cfg)) {
		return true
	}
	now := c.clock.Now().In(c.loc)
	w, err := geometry.ComputeRange(c.view, c.focus, c.cfg.Options(c.view, now))
	if err != nil {
		return true
	}
	return !c.fetched.window.Contains(w.Start) || !c.fetched.window.Contains(w.End)
}

// SetView switches the shown view, fetching when the new window is not
// covered yet.
func (c *Coordinator) SetView(ctx context.Context, v geometry.ViewType) error {
	if !v.Valid() {
		return fmt.Errorf("unknown view type %q", v)
	}
	return c.move(ctx, func() { c.view = v })
}

// Navigate pages the focus date of the current view.
func (c *Coordinator) Navigate(ctx context.Context, dir geometry.Direction) error {
	return c.move(ctx, func() {
		now := c.clock.Now().In(c.loc)
		c.focus = geometry.Step(c.view, c.cfg.Week.Mode, c.focus, now, dir)
	})
}

// SetFocus jumps to the day containing t.
func (c *Coordinator) SetFocus(ctx context.Context, t time.Time) error {
	return c.move(ctx, func() { c.focus = dates.StartOfDay(t.In(c.loc)) })
}

func (c *Coordinator) move(ctx context.Context, change func()) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	change()
	refetch := len(c.cfg.Calendars) > 0 && c.needsFetchLocked()
	c.mu.Unlock()

	if refetch {
		_, err := c.Refresh(ctx)
		return err
	}
	return nil
}

// Events returns the current event list. Callers must not modify it.
func (c *Coordinator) Events() []model.Event {
	return *c.events.Load()
}

// Failed lists the calendars that failed in the last fetch.
func (c *Coordinator) Failed() []string {
	return *c.failed.Load()
}

// Forecasts returns the latest forecast index, nil before the first push.
func (c *Coordinator) Forecasts() weather.Index {
	if ix := c.forecast.Load(); ix != nil {
		return *ix
	}
	return nil
}

// State is the navigation state of the coordinator.
type State struct {
	View     geometry.ViewType `json:"view"`
	Focus    time.Time         `json:"focus"`
	Window   model.Window      `json:"window"`
	Schedule refresh.Schedule  `json:"schedule"`
	NextFire time.Time         `json:"next_fire,omitzero"`
}

func (c *Coordinator) State() (State, error) {
	c.mu.Lock()
	cfg, view, focus := c.cfg, c.view, c.focus
	c.mu.Unlock()

	now := c.clock.Now().In(c.loc)
	w, err := geometry.ComputeRange(view, focus, cfg.Options(view, now))
	if err != nil {
		return State{}, err
	}
	st := State{View: view, Focus: focus, Window: w, Schedule: refresh.Describe(cfg.RefreshMinutes, now)}
	if h := c.sched.Current(); h != nil {
		st.NextFire = h.NextFire()
	}
	return st, nil
}

// Config returns the resolved configuration in use.
func (c *Coordinator) Config() config.Resolved {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// startWeather must be called with life held.
func (c *Coordinator) startWeather(cfg config.Resolved) {
	if !cfg.Weather.Enabled || c.sub == nil {
		return
	}
	target := weather.Target{
		Entity:            cfg.Weather.Entity,
		SupportedFeatures: cfg.Weather.Features,
		ForecastType:      cfg.Weather.ForecastType,
	}
	r := subscribe.NewRetrier(target.Guard(c.sub), c.clock, weather.EventType, target.Params(), c.onForecast)
	r.OnAttempt = c.metrics.SubscribeAttempt
	r.OnExhausted = func(err error) {
		c.metrics.SubscribeExhausted()
		appLog.Error("weather forecast unavailable", err, "entity", target.Entity)
	}
	c.weather = r
	r.Start(c.ctx)
}

// stopWeather must be called with life held.
func (c *Coordinator) stopWeather() {
	if c.weather == nil {
		return
	}
	if err := c.weather.Stop(c.ctx); err != nil {
		appLog.Error("weather unsubscribe failed", err)
	}
	c.weather = nil
	c.forecast.Store(nil)
}

// WeatherErr returns the weather subscription's last error, nil while
// subscribed or disabled.
func (c *Coordinator) WeatherErr() error {
	c.life.Lock()
	defer c.life.Unlock()
	if c.weather == nil {
		return nil
	}
	return c.weather.Err()
}

func (c *Coordinator) onForecast(payload []byte) {
	ix, err := weather.Decode(payload, c.loc)
	if err != nil {
		appLog.Error("bad forecast payload", err)
		return
	}
	c.forecast.Store(&ix)
	appLog.Debug("forecast updated", "days", len(ix))
}

func sortedIDs(cfg config.Resolved) []string {
	ids := cfg.CalendarIDs()
	slices.Sort(ids)
	return ids
}
