package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"dashcal/internal/geometry"
)

func TestLoadWritesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Listen, again.Listen)
	assert.Equal(t, 15, again.Card.EventRefreshInterval)
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: ':9000'\nlog_level: loud\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotNil(t, cfg.ICS)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ICS = []ICSConfig{{ID: "calendar.team", URL: "https://example.com/a.ics"}}
	cfg.CalDAV = []CalDAVConfig{{ID: "calendar.team", URL: "https://dav.example.com"}}
	cfg.Timezone = "Mars/Olympus"
	cfg.Card.ViewType = "year"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate calendar id "calendar.team"`)
	assert.Contains(t, err.Error(), "Mars/Olympus")
	assert.Contains(t, err.Error(), `view_type "year"`)

	assert.NoError(t, DefaultConfig().Validate())
}

func parseCard(t *testing.T, src string) Card {
	t.Helper()
	var c Card
	require.NoError(t, yaml.Unmarshal([]byte(src), &c))
	return c
}

func TestResolveDefaults(t *testing.T) {
	r := Resolve(Card{})

	assert.Equal(t, geometry.ViewMonth, r.View)
	assert.False(t, r.ShowControls)
	assert.Equal(t, "header", r.ToggleLocation)
	assert.Equal(t, 15, r.RefreshMinutes)
	assert.Equal(t, MonthResolved{WeekStart: time.Sunday, NumWeeks: 12, Start: geometry.MonthFromCurrentWeek}, r.Month)
	assert.Equal(t, WeekResolved{WeekStart: time.Sunday, Mode: geometry.WeekCurrent}, r.Week)
	assert.False(t, r.Weather.Enabled)
	assert.Equal(t, "daily", r.Weather.ForecastType)
}

func TestResolvePrecedence(t *testing.T) {
	c := parseCard(t, `
week_start: 1
events_span_days: true
num_weeks: 6
week_calendar_view: next_5_days
show_view_toggle: true
month_view:
  week_start: "0"
  month_calendar_start: start_of_month
week_view:
  events_span_days: false
agenda_view: {}
`)
	r := Resolve(c)

	assert.Equal(t, time.Sunday, r.Month.WeekStart, "per-view beats flat")
	assert.True(t, r.Month.EventsSpanDays, "flat beats default")
	assert.Equal(t, 6, r.Month.NumWeeks)
	assert.Equal(t, geometry.MonthFromStart, r.Month.Start)

	assert.Equal(t, time.Monday, r.Week.WeekStart)
	assert.False(t, r.Week.EventsSpanDays)
	assert.Equal(t, geometry.WeekNext5Days, r.Week.Mode)

	assert.Equal(t, time.Monday, r.Agenda.WeekStart)
	assert.True(t, r.ShowControls, "legacy toggle alias")

	assert.Equal(t, time.Monday, r.WeekStartFor(geometry.ViewWeek))
	assert.True(t, r.SpanDaysFor(geometry.ViewMonth))
	assert.False(t, r.SpanDaysFor(geometry.ViewAgenda))
}

func TestResolveInteractiveControlsWinsOverAlias(t *testing.T) {
	c := parseCard(t, "show_interactive_controls: false\nshow_view_toggle: true\n")
	assert.False(t, Resolve(c).ShowControls)
}

func TestWeekdayForms(t *testing.T) {
	for src, want := range map[string]time.Weekday{
		"week_start: 3":        time.Wednesday,
		`week_start: "6"`:      time.Saturday,
		"week_start: Monday":   time.Monday,
		"week_start: saturday": time.Saturday,
	} {
		t.Run(src, func(t *testing.T) {
			assert.Equal(t, want, Resolve(parseCard(t, src)).Agenda.WeekStart)
		})
	}

	var c Card
	assert.Error(t, yaml.Unmarshal([]byte("week_start: 9"), &c))
	assert.Error(t, yaml.Unmarshal([]byte("week_start: someday"), &c))
}

func TestResolveWeatherAndPlan(t *testing.T) {
	c := parseCard(t, `
enable_weather: true
weather_entity: weather.home
weather_supported_features: 3
event_refresh_interval: 30
calendars:
  - entity: calendar.team
    color: blue
  - entity: calendar.home
`)
	r := Resolve(c)
	assert.True(t, r.Weather.Enabled)
	assert.Equal(t, 3, r.Weather.Features)
	assert.Equal(t, []string{"calendar.team", "calendar.home"}, r.CalendarIDs())

	p, err := r.Plan()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, p.Period)

	r.RefreshCron = "0 * * * *"
	p, err = r.Plan()
	require.NoError(t, err)
	assert.Zero(t, p.Period)
}

func TestCardValidate(t *testing.T) {
	bad := parseCard(t, `
view_type: year
month_calendar_start: end_of_month
week_view:
  week_calendar_view: next_3_days
refresh_cron: "not a cron"
calendars:
  - entity: calendar.a
  - entity: calendar.a
  - color: red
`)
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"view_type", "month_calendar_start", "week_calendar_view", "refresh cron", "listed twice", "without entity"} {
		assert.Contains(t, err.Error(), want)
	}

	r := Resolve(bad)
	assert.Equal(t, geometry.ViewMonth, r.View)
	assert.Equal(t, geometry.MonthFromCurrentWeek, r.Month.Start)
	assert.Equal(t, geometry.WeekCurrent, r.Week.Mode)
}

func TestResolveForecastType(t *testing.T) {
	assert.Equal(t, "hourly", Resolve(Card{ForecastType: "HOURLY"}).Weather.ForecastType)
	assert.Equal(t, "twice_daily", Resolve(Card{ForecastType: "twice_daily"}).Weather.ForecastType)
	assert.Equal(t, "daily", Resolve(Card{ForecastType: "weekly"}).Weather.ForecastType)

	assert.ErrorContains(t, Card{ForecastType: "weekly"}.Validate(), "forecast_type")
	assert.NoError(t, Card{ForecastType: "hourly"}.Validate())
}
