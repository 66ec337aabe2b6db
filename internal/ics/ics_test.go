package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var feedBody = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//dashcal//test//EN",
	"BEGIN:VEVENT",
	"UID:single@test",
	"DTSTAMP:20250301T000000Z",
	"DTSTART:20250311T090000Z",
	"DTEND:20250311T100000Z",
	"SUMMARY:Standup",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly@test",
	"DTSTAMP:20250301T000000Z",
	"DTSTART:20250303T140000Z",
	"DTEND:20250303T150000Z",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20250310T140000Z",
	"SUMMARY:Sync",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly@test",
	"DTSTAMP:20250301T000000Z",
	"RECURRENCE-ID:20250317T140000Z",
	"DTSTART:20250317T160000Z",
	"DTEND:20250317T170000Z",
	"SUMMARY:Sync (moved)",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:trip@test",
	"DTSTAMP:20250301T000000Z",
	"DTSTART;VALUE=DATE:20250312",
	"DTEND;VALUE=DATE:20250314",
	"SUMMARY:Trip",
	"END:VEVENT",
	"END:VCALENDAR",
	"",
}, "\r\n")

func TestParseAndExpand(t *testing.T) {
	feed := Feed{ID: "team", URL: "https://example.com/team.ics"}
	parsed, err := Parse(feed, []byte(feedBody), time.UTC)
	require.NoError(t, err)
	require.Len(t, parsed, 4)
	assert.True(t, parsed[3].AllDay)
	assert.True(t, parsed[2].IsOverride())

	occs, err := Expand(parsed, Range{
		Start:    time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2025, time.March, 23, 23, 59, 59, 0, time.UTC),
		Location: time.UTC,
	})
	require.NoError(t, err)
	require.Len(t, occs, 3)

	entries := Entries(occs)
	assert.Equal(t, "Standup", entries[0].Summary)
	assert.Equal(t, "2025-03-11T09:00:00Z", entries[0].Start.Value)

	assert.Equal(t, "Sync (moved)", entries[1].Summary)
	assert.Equal(t, "2025-03-17T16:00:00Z", entries[1].Start.Value)
	assert.Equal(t, "20250317T140000Z", entries[1].RecurrenceID)

	assert.Equal(t, "Trip", entries[2].Summary)
	assert.Equal(t, "2025-03-12", entries[2].Start.Value)
	assert.Equal(t, "2025-03-14", entries[2].End.Value, "all-day ends stay exclusive")
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	now := time.Now()
	_, err := Expand(nil, Range{Start: now, End: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestParseEmptyBody(t *testing.T) {
	_, err := Parse(Feed{ID: "x"}, nil, time.UTC)
	assert.Error(t, err)
}

func TestFetcherConditionalCache(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	var conditional atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
		}
		switch int(status.Load()) {
		case http.StatusOK:
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte(feedBody))
		case http.StatusNotModified:
			w.WriteHeader(http.StatusNotModified)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	feed := Feed{ID: "team", URL: srv.URL + "/private/token.ics"}
	ctx := context.Background()

	b, err := f.Fetch(ctx, feed)
	require.NoError(t, err)
	assert.False(t, b.FromCache)
	assert.Equal(t, feedBody, string(b.Data))

	status.Store(http.StatusNotModified)
	b, err = f.Fetch(ctx, feed)
	require.NoError(t, err)
	assert.True(t, b.FromCache)
	assert.Equal(t, feedBody, string(b.Data))
	assert.Equal(t, int32(1), conditional.Load())

	status.Store(http.StatusInternalServerError)
	b, err = f.Fetch(ctx, feed)
	require.NoError(t, err, "an error status falls back to the cached body")
	assert.True(t, b.FromCache)

	_, err = NewFetcher(t.TempDir(), srv.Client()).Fetch(ctx, feed)
	assert.Error(t, err, "no cache to fall back to")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/abc.ics?token=x"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
