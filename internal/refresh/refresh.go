// Package refresh schedules periodic refetches aligned to wall-clock
// boundaries: with a 15 minute interval fires land on :00, :15, :30, :45.
package refresh

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dashcal/internal/clock"
	appLog "dashcal/internal/log"
)

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = 15

// DelayUntilNextBoundary returns the time from now to the next multiple of
// intervalMinutes within the hour. Exactly on a boundary the full interval
// is returned, never zero.
func DelayUntilNextBoundary(intervalMinutes int, now time.Time) time.Duration {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultInterval
	}
	sub := time.Duration(now.Second())*time.Second + time.Duration(now.Nanosecond())
	if intervalMinutes == 1 {
		return time.Minute - sub
	}
	interval := time.Duration(intervalMinutes) * time.Minute
	elapsed := time.Duration(now.Minute()%intervalMinutes)*time.Minute + sub
	return interval - elapsed
}

// IntervalSchedule is a cron.Schedule firing on interval boundaries.
type IntervalSchedule struct {
	Minutes int
}

func (s IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(DelayUntilNextBoundary(s.Minutes, t))
}

var _ cron.Schedule = IntervalSchedule{}

// Plan describes when a scheduler fires. The first fire is at
// Schedule.Next(now). With a positive Period later fires repeat at that
// fixed period; otherwise every fire re-arms at Schedule.Next.
type Plan struct {
	Schedule cron.Schedule
	Period   time.Duration
	// Label names the plan in logs.
	Label string
}

// IntervalPlan fires on the next boundary and then every minutes.
func IntervalPlan(minutes int) Plan {
	if minutes <= 0 {
		minutes = DefaultInterval
	}
	return Plan{
		Schedule: IntervalSchedule{Minutes: minutes},
		Period:   time.Duration(minutes) * time.Minute,
		Label:    fmt.Sprintf("every %dm", minutes),
	}
}

// CronPlan parses a standard five-field cron expression.
func CronPlan(spec string) (Plan, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return Plan{}, fmt.Errorf("parse refresh cron %q: %w", spec, err)
	}
	return Plan{Schedule: sched, Label: "cron " + spec}, nil
}

// PlanFor prefers a cron expression when one is set.
func PlanFor(minutes int, cronSpec string) (Plan, error) {
	if cronSpec != "" {
		return CronPlan(cronSpec)
	}
	return IntervalPlan(minutes), nil
}

// Scheduler owns at most one live Handle and calls fire on every tick.
type Scheduler struct {
	clock clock.Clock
	fire  func()

	mu      sync.Mutex
	current *Handle
}

func NewScheduler(c clock.Clock, fire func()) *Scheduler {
	if c == nil {
		c = clock.Real{}
	}
	return &Scheduler{clock: c, fire: fire}
}

// Start arms p. A running plan is torn down first, so Start and
// Reconfigure behave the same.
func (s *Scheduler) Start(p Plan) *Handle {
	return s.Reconfigure(p)
}

// Reconfigure cancels the live timers and rebuilds them from scratch with
// a fresh boundary computation.
func (s *Scheduler) Reconfigure(p Plan) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Stop()
	}
	h := &Handle{clock: s.clock, fire: s.fire, plan: p}
	h.arm(s.clock.Now())
	s.current = h
	appLog.Info("refresh scheduled", "plan", p.Label, "next", h.NextFire().Format(time.RFC3339))
	return h
}

// Stop tears down the live handle. Safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Stop()
		s.current = nil
	}
}

// Current returns the live handle, or nil.
func (s *Scheduler) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Handle is one armed schedule: the initial boundary-aligned one-shot and
// the repeating fires that follow it.
type Handle struct {
	clock clock.Clock
	fire  func()
	plan  Plan

	mu      sync.Mutex
	stopped bool
	timer   clock.Timer
	due     time.Time
	fired   int
}

// arm sets the timer for the first fire after now.
func (h *Handle) arm(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.due = h.plan.Schedule.Next(now)
	h.timer = h.clock.AfterFunc(h.due.Sub(now), h.tick)
}

func (h *Handle) tick() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	now := h.clock.Now()
	if h.plan.Period > 0 {
		next := h.due.Add(h.plan.Period)
		for !next.After(now) {
			next = next.Add(h.plan.Period)
		}
		h.due = next
	} else {
		h.due = h.plan.Schedule.Next(now)
	}
	h.timer = h.clock.AfterFunc(h.due.Sub(now), h.tick)
	h.fired++
	fire := h.fire
	h.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// Stop cancels both the pending one-shot and the repeating fire. After it
// returns no new fire starts. Idempotent.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
	}
}

// NextFire returns when the handle fires next. Zero once stopped.
func (h *Handle) NextFire() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return time.Time{}
	}
	return h.due
}

// Fired counts fires so far.
func (h *Handle) Fired() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}

// Schedule reports the interval and first delay of a plan as of now.
type Schedule struct {
	IntervalMinutes int           `json:"interval_minutes"`
	NextFireDelay   time.Duration `json:"next_fire_delay"`
}

// Describe computes the Schedule of an interval plan.
func Describe(minutes int, now time.Time) Schedule {
	if minutes <= 0 {
		minutes = DefaultInterval
	}
	return Schedule{IntervalMinutes: minutes, NextFireDelay: DelayUntilNextBoundary(minutes, now)}
}
