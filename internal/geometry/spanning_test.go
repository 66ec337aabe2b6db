package geometry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashcal/internal/dates"
	"dashcal/internal/model"
)

// base (2025-03-10) is a Monday.
var (
	winStart = base
	winEnd   = dates.EndOfDay(base.AddDate(0, 0, 6))
)

func slotKeys(m SlotMap, day int) []string {
	keys := make([]string, len(m[day]))
	for i, s := range m[day] {
		if s != nil {
			keys[i] = s.Event.Key
		}
	}
	return keys
}

func TestDistributeSlotStability(t *testing.T) {
	// Two bars claim slots 0 and 1 on Monday; the 3-day event starting
	// Tuesday lands in slot 2 because slot 0 and 1 are busy that day.
	long := allDay("long", 0, 5)
	mid := allDay("mid", 0, 2)
	third := allDay("third", 1, 1)
	span := allDay("span", 1, 3)

	m := Distribute([]model.Event{third, span, mid, long}, winStart, winEnd, time.Monday)
	require.Len(t, m, 7)

	assert.Equal(t, []string{"long", "mid"}, slotKeys(m, 0))
	assert.Equal(t, []string{"long", "mid", "span", "third"}, slotKeys(m, 1))
	// mid has ended: slot 1 is free on Wednesday but span stays in slot 2.
	assert.Equal(t, []string{"long", "", "span"}, slotKeys(m, 2))
	assert.Equal(t, []string{"long", "", "span"}, slotKeys(m, 3))
	assert.Equal(t, []string{"long"}, slotKeys(m, 4))
	assert.Empty(t, m[5])
}

func TestDistributeLaterShortEventTakesLowestFreeSlot(t *testing.T) {
	a := allDay("a", 0, 2)
	b := allDay("b", 0, 4)
	c := allDay("c", 2, 1)

	m := Distribute([]model.Event{a, b, c}, winStart, winEnd, time.Monday)
	// b is longer and wins slot 0 on the shared start day.
	assert.Equal(t, []string{"b", "a"}, slotKeys(m, 0))
	assert.Equal(t, []string{"b", "c"}, slotKeys(m, 2))
}

func TestDistributeClipsToWindow(t *testing.T) {
	before := allDay("before", -3, 5) // Fri..Tue
	after := allDay("after", 5, 4)    // Sat..Tue next week

	m := Distribute([]model.Event{after, before}, winStart, winEnd, time.Monday)

	assert.Equal(t, []string{"before"}, slotKeys(m, 0))
	assert.Equal(t, []string{"before"}, slotKeys(m, 1))
	assert.Empty(t, m[2])

	mon := m[0][0]
	assert.False(t, mon.Begins)
	assert.True(t, mon.Ends)
	assert.True(t, mon.Render)
	assert.Equal(t, 2, mon.Span)
	assert.False(t, m[1][0].Render)

	sat := m[5][0]
	assert.Equal(t, "after", sat.Event.Key)
	assert.True(t, sat.Begins)
	assert.False(t, sat.Ends, "ends in the following week")
	assert.Equal(t, 2, sat.Span)
}

func TestDistributeTimedEventEndingAtMidnight(t *testing.T) {
	overnight := model.Event{
		Key:          "party",
		Start:        base.Add(20 * time.Hour),
		End:          base.AddDate(0, 0, 1),
		DaysInterval: 1,
	}
	m := Distribute([]model.Event{overnight}, winStart, winEnd, time.Monday)
	assert.Equal(t, []string{"party"}, slotKeys(m, 0))
	assert.Empty(t, m[1])
	assert.Equal(t, 1, m[0][0].Span)
}

func TestDistributeIgnoresEventsOutsideWindow(t *testing.T) {
	gone := allDay("gone", -7, 2)
	later := allDay("later", 9, 1)
	endsAtStart := model.Event{Key: "edge", Start: base.Add(-2 * time.Hour), End: base}

	m := Distribute([]model.Event{gone, later, endsAtStart}, winStart, winEnd, time.Monday)
	assert.Zero(t, m.SlotCount())
}

func TestDistributeNDayWindow(t *testing.T) {
	// A 5-day window starting on a Wednesday splits bars at the week row.
	start := base.AddDate(0, 0, 2)
	end := dates.EndOfDay(start.AddDate(0, 0, 4))
	ev := allDay("trip", 3, 4) // Thu..Sun

	m := Distribute([]model.Event{ev}, start, end, time.Monday)
	require.Len(t, m, 5)
	assert.Equal(t, []string{"trip"}, slotKeys(m, 1))
	assert.Equal(t, []string{"trip"}, slotKeys(m, 4))
	assert.Equal(t, 4, m[1][0].Span)
	assert.True(t, m[1][0].Begins)
	assert.True(t, m[4][0].Ends)
}

func TestDistributeWeeks(t *testing.T) {
	w := model.Window{Start: base, End: dates.EndOfDay(base.AddDate(0, 0, 13))}
	ev := allDay("conf", 5, 4) // Sat..Tue

	maps := DistributeWeeks([]model.Event{ev}, w, time.Monday)
	require.Len(t, maps, 2)
	assert.Equal(t, 2, maps[0][5][0].Span)
	assert.True(t, maps[1][0][0].Render)
	assert.Equal(t, 2, maps[1][0][0].Span)
	assert.False(t, maps[1][0][0].Begins)
	assert.True(t, maps[1][1][0].Ends)
}

func TestDistributeEndsOnMidnightEnd(t *testing.T) {
	// Friday 10:00 to the following Monday 00:00 is drawn through Sunday
	// and finishes in this week row.
	ev := model.Event{
		Key:   "weekend",
		Start: base.AddDate(0, 0, 4).Add(10 * time.Hour),
		End:   base.AddDate(0, 0, 7),
	}

	m := Distribute([]model.Event{ev}, winStart, winEnd, time.Monday)
	require.Len(t, m, 7)
	assert.Equal(t, []string{"weekend"}, slotKeys(m, 4))
	assert.Equal(t, []string{"weekend"}, slotKeys(m, 6))
	assert.Equal(t, 3, m[4][0].Span)
	assert.True(t, m[4][0].Ends)
	assert.True(t, m[6][0].Ends)
}
