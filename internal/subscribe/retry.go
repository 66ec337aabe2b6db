// Package subscribe keeps a push subscription alive with a bounded retry
// schedule.
package subscribe

import (
	"context"
	"errors"
	"sync"
	"time"

	"dashcal/internal/clock"
	appLog "dashcal/internal/log"
)

// Backoff is the delay before each retry. After the last one is used up
// the retrier gives up.
var Backoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
	60 * time.Second,
	60 * time.Second,
}

// ErrUnsupported marks a subscription the remote side can never serve,
// such as a weather entity without daily forecasts.
var ErrUnsupported = errors.New("unsupported capability")

// Unsubscribe ends a subscription.
type Unsubscribe func(ctx context.Context) error

// Subscriber opens push subscriptions. cb receives raw payloads and may be
// called from another goroutine.
type Subscriber interface {
	Subscribe(ctx context.Context, eventType string, params map[string]string, cb func(payload []byte)) (Unsubscribe, error)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, eventType string, params map[string]string, cb func(payload []byte)) (Unsubscribe, error)

func (f SubscriberFunc) Subscribe(ctx context.Context, eventType string, params map[string]string, cb func(payload []byte)) (Unsubscribe, error) {
	return f(ctx, eventType, params, cb)
}

// Retrier subscribes once and retries on failure following Backoff.
type Retrier struct {
	sub       Subscriber
	clock     clock.Clock
	eventType string
	params    map[string]string
	cb        func([]byte)

	// OnAttempt, if set, sees the outcome of every subscribe call.
	OnAttempt func(err error)
	// OnExhausted, if set, runs once when retries are used up.
	OnExhausted func(err error)

	mu        sync.Mutex
	retries   int
	timer     clock.Timer
	unsub     Unsubscribe
	stopped   bool
	exhausted bool
	lastErr   error
}

func NewRetrier(sub Subscriber, c clock.Clock, eventType string, params map[string]string, cb func([]byte)) *Retrier {
	if c == nil {
		c = clock.Real{}
	}
	return &Retrier{sub: sub, clock: c, eventType: eventType, params: params, cb: cb}
}

// Start makes the first attempt synchronously; retries run on timers.
func (r *Retrier) Start(ctx context.Context) {
	r.attempt(ctx)
}

func (r *Retrier) attempt(ctx context.Context) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	prev := r.unsub
	r.unsub = nil
	r.mu.Unlock()

	if prev != nil {
		if err := prev(ctx); err != nil {
			appLog.Error("unsubscribe before resubscribe failed", err, "type", r.eventType)
		}
	}

	unsub, err := r.sub.Subscribe(ctx, r.eventType, r.params, r.deliver)
	if r.OnAttempt != nil {
		r.OnAttempt(err)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		if unsub != nil {
			_ = unsub(ctx)
		}
		return
	}
	if err == nil {
		r.unsub = unsub
		r.lastErr = nil
		r.mu.Unlock()
		appLog.Info("subscribed", "type", r.eventType, "params", r.params)
		return
	}

	r.lastErr = err
	appLog.Error("subscribe failed", err, "type", r.eventType, "attempt", r.retries+1)
	if r.retries >= len(Backoff) {
		r.exhausted = true
		onExhausted := r.OnExhausted
		r.mu.Unlock()
		appLog.Warn("subscribe retries exhausted, giving up", "type", r.eventType, "retries", len(Backoff), "err", err)
		if onExhausted != nil {
			onExhausted(err)
		}
		return
	}
	delay := Backoff[r.retries]
	r.retries++
	r.timer = r.clock.AfterFunc(delay, func() { r.attempt(ctx) })
	r.mu.Unlock()

	appLog.Info("subscribe retry scheduled", "type", r.eventType, "delay", delay, "retry", r.retries)
}

// deliver resets the retry budget: a payload proves the link works.
func (r *Retrier) deliver(payload []byte) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.retries = 0
	r.mu.Unlock()

	if r.cb != nil {
		r.cb(payload)
	}
}

// Stop cancels a pending retry and ends the live subscription. Idempotent.
func (r *Retrier) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
	unsub := r.unsub
	r.unsub = nil
	r.mu.Unlock()

	if unsub != nil {
		return unsub(ctx)
	}
	return nil
}

// Retries returns how many retries have been scheduled since the last
// payload.
func (r *Retrier) Retries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retries
}

// Exhausted reports whether the retrier gave up.
func (r *Retrier) Exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exhausted
}

// Err returns the last subscribe error, nil while subscribed.
func (r *Retrier) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
