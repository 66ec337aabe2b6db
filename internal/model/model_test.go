package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawEntryDecodeShapes(t *testing.T) {
	payload := `[
		{"summary": "Holiday", "start": "2025-03-10", "end": "2025-03-12"},
		{"summary": "Standup", "start": {"dateTime": "2025-03-10T09:00:00+01:00"}, "end": {"dateTime": "2025-03-10T09:15:00+01:00"}, "uid": "abc"},
		{"summary": "Trip", "start": {"date": "2025-03-14"}, "end": {"date": "2025-03-17"}, "rrule": "FREQ=YEARLY"}
	]`

	var entries []RawEntry
	require.NoError(t, json.Unmarshal([]byte(payload), &entries))
	require.Len(t, entries, 3)

	assert.Equal(t, "2025-03-10", entries[0].Start.Value)
	assert.Equal(t, "2025-03-12", entries[0].End.Value)
	assert.Equal(t, "2025-03-10T09:00:00+01:00", entries[1].Start.Value)
	assert.Equal(t, "abc", entries[1].UID)
	assert.Equal(t, "2025-03-14", entries[2].Start.Value)
	assert.Equal(t, "FREQ=YEARLY", entries[2].RRule)
}

func TestRawDateRejectsEmptyObject(t *testing.T) {
	var d RawDate
	assert.Error(t, json.Unmarshal([]byte(`{"timeZone": "UTC"}`), &d))
}

func TestRawDateEncodesAsString(t *testing.T) {
	b, err := json.Marshal(RawEntry{Summary: "x", Start: RawDate{"2025-03-10"}, End: RawDate{"2025-03-11"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"x","start":"2025-03-10","end":"2025-03-11"}`, string(b))
}
