package geometry

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcal/internal/model"
)

var base = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

func timed(key string, startH, startM, endH, endM int) model.Event {
	return model.Event{
		Key:          key,
		Title:        key,
		Start:        base.Add(time.Duration(startH)*time.Hour + time.Duration(startM)*time.Minute),
		End:          base.Add(time.Duration(endH)*time.Hour + time.Duration(endM)*time.Minute),
		DaysInterval: 1,
	}
}

func allDay(key string, day, days int) model.Event {
	start := base.AddDate(0, 0, day)
	return model.Event{
		Key:          key,
		Title:        key,
		Start:        start,
		End:          start.AddDate(0, 0, days).Add(-time.Millisecond),
		AllDay:       true,
		DaysInterval: days,
	}
}

func TestLayoutIsolatedEvent(t *testing.T) {
	ev := timed("solo", 9, 30, 10, 15)
	other := timed("later", 11, 0, 12, 0)

	pos := Layout(ev, []model.Event{ev, other})
	assert.Equal(t, model.TimedPosition{Top: 570, Height: 45, Left: 0, Width: 100, ZIndex: 2}, pos)
}

func TestLayoutThreeEventOverlap(t *testing.T) {
	a := timed("A", 10, 0, 14, 0)
	b := timed("B", 11, 0, 11, 30)
	c := timed("C", 13, 0, 13, 30)

	got := LayoutDay([]model.Event{a, b, c})

	assert.Equal(t, model.TimedPosition{Top: 600, Height: 240, Left: 0, Width: 50, ZIndex: 2}, got[0])
	assert.Equal(t, model.TimedPosition{Top: 660, Height: 30, Left: 50, Width: 50, ZIndex: 52}, got[1])
	assert.Equal(t, model.TimedPosition{Top: 780, Height: 30, Left: 50, Width: 50, ZIndex: 52}, got[2])
}

func TestLayoutTailReuseOfColumnZero(t *testing.T) {
	a := timed("A", 10, 0, 11, 0)
	b := timed("B", 10, 30, 11, 30)
	c := timed("C", 11, 0, 12, 0)

	got := LayoutDay([]model.Event{a, b, c})

	assert.Equal(t, 0.0, got[0].Left)
	assert.Equal(t, 50.0, got[0].Width)
	assert.Equal(t, 50.0, got[1].Left)
	assert.Equal(t, 50.0, got[1].Width)
	assert.Equal(t, 0.0, got[2].Left, "C starts when A ends and reuses column 0")
	assert.Equal(t, 50.0, got[2].Width)
}

func TestLayoutTouchingEventsDoNotOverlap(t *testing.T) {
	a := timed("A", 9, 0, 10, 0)
	b := timed("B", 10, 0, 11, 0)

	got := LayoutDay([]model.Event{a, b})
	for _, p := range got {
		assert.Equal(t, 0.0, p.Left)
		assert.Equal(t, 100.0, p.Width)
	}
}

func TestLayoutIdenticalEventsGetDistinctColumns(t *testing.T) {
	a := timed("A", 9, 0, 10, 0)
	b := timed("B", 9, 0, 10, 0)

	got := LayoutDay([]model.Event{a, b})
	assert.Equal(t, 0.0, got[0].Left, "input order breaks the tie")
	assert.Equal(t, 50.0, got[1].Left)
	assert.Equal(t, 50.0, got[0].Width)
	assert.Equal(t, 50.0, got[1].Width)
}

func TestLayoutAllDayFixedGeometry(t *testing.T) {
	ad := allDay("holiday", 0, 1)
	events := []model.Event{timed("x", 0, 0, 23, 0), ad, timed("y", 8, 0, 9, 0)}

	got := LayoutDay(events)
	assert.Equal(t, AllDayPosition, got[1])
	assert.Equal(t, model.TimedPosition{Top: 0, Height: 30, Left: 0, Width: 100, ZIndex: 1}, Layout(ad, events))
	for _, i := range []int{0, 2} {
		assert.Greater(t, got[i].ZIndex, 1)
	}
}

func TestLayoutLocalDensityWidens(t *testing.T) {
	// a is crowded early on; b only overlaps a's tail but must not slide
	// under it.
	z := timed("Z", 8, 0, 9, 30)
	a := timed("a", 9, 0, 12, 0)
	w1 := timed("W1", 9, 10, 9, 20)
	w2 := timed("W2", 9, 10, 9, 20)
	b := timed("b", 11, 0, 11, 30)

	events := []model.Event{z, a, w1, w2, b}
	got := LayoutDay(events)
	assertNoOverlap(t, events, got)
	assert.Equal(t, 0.0, got[4].Left)
	assert.Equal(t, 25.0, got[4].Width)

	// A lone event later that day still spans the full width.
	late := timed("late", 18, 0, 19, 0)
	assert.Equal(t, 100.0, Layout(late, append(events, late)).Width)
}

func TestLayoutClipsAtEndOfDay(t *testing.T) {
	ev := timed("overnight", 22, 0, 26, 0)
	pos := Layout(ev, []model.Event{ev})
	assert.Equal(t, 1320, pos.Top)
	assert.Equal(t, 120, pos.Height)
}

func TestLayoutNoOverlapRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 300; round++ {
		n := 1 + rng.Intn(12)
		events := make([]model.Event, n)
		for i := range events {
			start := rng.Intn(22 * 4)
			length := 1 + rng.Intn(12)
			ev := model.Event{
				Key:          fmt.Sprintf("r%d-%d", round, i),
				Start:        base.Add(time.Duration(start) * 15 * time.Minute),
				End:          base.Add(time.Duration(start+length) * 15 * time.Minute),
				DaysInterval: 1,
			}
			events[i] = ev
		}
		got := LayoutDay(events)
		assertNoOverlap(t, events, got)
		for i, p := range got {
			if !hasOverlap(events, i) {
				assert.Equal(t, 100.0, p.Width, "round %d event %d", round, i)
				assert.Equal(t, 0.0, p.Left, "round %d event %d", round, i)
			}
		}
	}
}

func TestEventsForDay(t *testing.T) {
	late := timed("late", 15, 0, 16, 0)
	early := timed("early", 8, 0, 9, 0)
	tomorrow := model.Event{Key: "tomorrow", Start: base.AddDate(0, 0, 1).Add(8 * time.Hour), End: base.AddDate(0, 0, 1).Add(9 * time.Hour)}
	trip := allDay("trip", -1, 3)
	past := allDay("past", -3, 2)

	got := EventsForDay([]model.Event{late, tomorrow, early, trip, past}, base.Add(12*time.Hour))
	require.Len(t, got, 3)
	assert.Equal(t, "trip", got[0].Key)
	assert.Equal(t, "early", got[1].Key)
	assert.Equal(t, "late", got[2].Key)
}

func hasOverlap(events []model.Event, i int) bool {
	for j := range events {
		if j != i && overlaps(events[i], events[j]) {
			return true
		}
	}
	return false
}

func assertNoOverlap(t *testing.T, events []model.Event, pos []model.TimedPosition) {
	t.Helper()
	const eps = 1e-9
	for i := range events {
		for j := i + 1; j < len(events); j++ {
			if !overlaps(events[i], events[j]) {
				continue
			}
			a, b := pos[i], pos[j]
			disjoint := a.Left+a.Width <= b.Left+eps || b.Left+b.Width <= a.Left+eps
			assert.True(t, disjoint, "%s %+v and %s %+v share horizontal space", events[i].Key, a, events[j].Key, b)
		}
	}
}
