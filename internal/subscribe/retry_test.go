package subscribe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcal/internal/clock"
)

type scriptedSubscriber struct {
	mu       sync.Mutex
	calls    int
	failures int // calls that fail before succeeding; -1 fails forever
	err      error
	cb       func([]byte)
	unsubs   int
}

func (s *scriptedSubscriber) Subscribe(_ context.Context, _ string, _ map[string]string, cb func([]byte)) (Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures < 0 || s.calls <= s.failures {
		return nil, s.err
	}
	s.cb = cb
	return func(context.Context) error {
		s.mu.Lock()
		s.unsubs++
		s.mu.Unlock()
		return nil
	}, nil
}

func (s *scriptedSubscriber) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var t0 = time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)

func TestRetrierFollowsBackoffAndStops(t *testing.T) {
	clk := clock.NewManual(t0)
	sub := &scriptedSubscriber{failures: -1, err: errors.New("connection refused")}
	r := NewRetrier(sub, clk, "weather/subscribe_forecast", nil, nil)

	var exhaustedWith error
	r.OnExhausted = func(err error) { exhaustedWith = err }

	r.Start(context.Background())
	require.Equal(t, 1, sub.Calls())

	for i, d := range Backoff {
		due, ok := clk.NextDue()
		require.True(t, ok, "retry %d should be pending", i+1)
		assert.Equal(t, d, due.Sub(clk.Now()), "retry %d delay", i+1)
		clk.Advance(d)
		assert.Equal(t, i+2, sub.Calls())
	}

	assert.True(t, r.Exhausted())
	assert.Equal(t, 0, clk.Pending(), "no ninth retry timer")
	assert.EqualError(t, exhaustedWith, "connection refused")

	clk.Advance(time.Hour)
	assert.Equal(t, len(Backoff)+1, sub.Calls())
}

func TestRetrierRecoversAndResetsOnPayload(t *testing.T) {
	clk := clock.NewManual(t0)
	sub := &scriptedSubscriber{failures: 3, err: errors.New("not yet")}
	var got []string
	r := NewRetrier(sub, clk, "weather/subscribe_forecast", nil, func(p []byte) { got = append(got, string(p)) })

	r.Start(context.Background())
	clk.Advance(1 * time.Second)
	clk.Advance(2 * time.Second)
	assert.Equal(t, 3, r.Retries())
	clk.Advance(4 * time.Second)

	require.Equal(t, 4, sub.Calls())
	assert.NoError(t, r.Err())
	assert.Equal(t, 0, clk.Pending())

	sub.cb([]byte(`{"type":"daily"}`))
	assert.Equal(t, 0, r.Retries())
	assert.Equal(t, []string{`{"type":"daily"}`}, got)

	require.NoError(t, r.Stop(context.Background()))
	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, 1, sub.unsubs)

	sub.cb([]byte("late"))
	assert.Len(t, got, 1, "payloads after Stop are dropped")
}

func TestRetrierStopCancelsPendingRetry(t *testing.T) {
	clk := clock.NewManual(t0)
	sub := &scriptedSubscriber{failures: -1, err: errors.New("down")}
	r := NewRetrier(sub, clk, "x", nil, nil)

	r.Start(context.Background())
	require.Equal(t, 1, clk.Pending())
	require.NoError(t, r.Stop(context.Background()))

	assert.Equal(t, 0, clk.Pending())
	clk.Advance(time.Hour)
	assert.Equal(t, 1, sub.Calls())
	assert.False(t, r.Exhausted())
}

func TestRetrierUnsupportedTravelsRetryPath(t *testing.T) {
	clk := clock.NewManual(t0)
	sub := SubscriberFunc(func(context.Context, string, map[string]string, func([]byte)) (Unsubscribe, error) {
		return nil, fmt.Errorf("%w: no daily forecast", ErrUnsupported)
	})
	var attempts int
	r := NewRetrier(sub, clk, "x", nil, nil)
	r.OnAttempt = func(err error) {
		attempts++
		assert.ErrorIs(t, err, ErrUnsupported)
	}

	r.Start(context.Background())
	clk.Advance(10 * time.Minute)

	assert.True(t, r.Exhausted())
	assert.Equal(t, len(Backoff)+1, attempts)
	assert.ErrorIs(t, r.Err(), ErrUnsupported)
}
