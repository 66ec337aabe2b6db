package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dashcal/internal/geometry"
	"dashcal/internal/model"
	"dashcal/internal/refresh"
	"dashcal/internal/weather"
)

// Weekday is a week start setting. It accepts 0-6 (Sunday=0) as a number
// or a string, or an English day name.
type Weekday struct {
	Day time.Weekday
}

func (w *Weekday) UnmarshalYAML(node *yaml.Node) error {
	d, err := parseWeekday(node.Value)
	if err != nil {
		return err
	}
	w.Day = d
	return nil
}

func (w Weekday) MarshalYAML() (any, error) {
	return strconv.Itoa(int(w.Day)), nil
}

func (w *Weekday) UnmarshalJSON(b []byte) error {
	d, err := parseWeekday(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	w.Day = d
	return nil
}

func (w Weekday) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.Itoa(int(w.Day)))), nil
}

func parseWeekday(v string) (time.Weekday, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("week_start %d out of range 0-6", n)
		}
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == v {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid week_start %q", v)
}

type MonthViewConfig struct {
	WeekStart          *Weekday `yaml:"week_start,omitempty" json:"week_start,omitempty"`
	EventsSpanDays     *bool    `yaml:"events_span_days,omitempty" json:"events_span_days,omitempty"`
	NumWeeks           int      `yaml:"num_weeks,omitempty" json:"num_weeks,omitempty"`
	MonthCalendarStart string   `yaml:"month_calendar_start,omitempty" json:"month_calendar_start,omitempty"`
}

type WeekViewConfig struct {
	WeekStart        *Weekday `yaml:"week_start,omitempty" json:"week_start,omitempty"`
	EventsSpanDays   *bool    `yaml:"events_span_days,omitempty" json:"events_span_days,omitempty"`
	WeekCalendarView string   `yaml:"week_calendar_view,omitempty" json:"week_calendar_view,omitempty"`
}

type AgendaViewConfig struct {
	WeekStart *Weekday `yaml:"week_start,omitempty" json:"week_start,omitempty"`
}

// Card is the calendar card configuration as users write it. Several
// historical shapes are accepted; Resolve maps them onto one struct.
type Card struct {
	Calendars []model.Calendar `yaml:"calendars" json:"calendars"`
	ViewType  string           `yaml:"view_type,omitempty" json:"view_type,omitempty"`

	ShowInteractiveControls *bool `yaml:"show_interactive_controls,omitempty" json:"show_interactive_controls,omitempty"`
	// Deprecated: use ShowInteractiveControls.
	ShowViewToggle     *bool  `yaml:"show_view_toggle,omitempty" json:"show_view_toggle,omitempty"`
	ViewToggleLocation string `yaml:"view_toggle_location,omitempty" json:"view_toggle_location,omitempty"`

	// EventRefreshInterval is in minutes.
	EventRefreshInterval int `yaml:"event_refresh_interval,omitempty" json:"event_refresh_interval,omitempty"`
	// RefreshCron, when set, replaces the interval with a cron schedule.
	RefreshCron string `yaml:"refresh_cron,omitempty" json:"refresh_cron,omitempty"`

	EnableWeather bool   `yaml:"enable_weather,omitempty" json:"enable_weather,omitempty"`
	WeatherEntity string `yaml:"weather_entity,omitempty" json:"weather_entity,omitempty"`
	// WeatherFeatures is the entity's supported_features bit mask.
	WeatherFeatures int    `yaml:"weather_supported_features,omitempty" json:"weather_supported_features,omitempty"`
	ForecastType    string `yaml:"forecast_type,omitempty" json:"forecast_type,omitempty"`

	// TextSize is a percent scale for the presentation layer.
	TextSize int `yaml:"text_size,omitempty" json:"text_size,omitempty"`

	// Flat fields from before the per-view sections.
	WeekStart          *Weekday `yaml:"week_start,omitempty" json:"week_start,omitempty"`
	EventsSpanDays     *bool    `yaml:"events_span_days,omitempty" json:"events_span_days,omitempty"`
	NumWeeks           int      `yaml:"num_weeks,omitempty" json:"num_weeks,omitempty"`
	MonthCalendarStart string   `yaml:"month_calendar_start,omitempty" json:"month_calendar_start,omitempty"`
	WeekCalendarView   string   `yaml:"week_calendar_view,omitempty" json:"week_calendar_view,omitempty"`

	MonthView  *MonthViewConfig  `yaml:"month_view,omitempty" json:"month_view,omitempty"`
	WeekView   *WeekViewConfig   `yaml:"week_view,omitempty" json:"week_view,omitempty"`
	AgendaView *AgendaViewConfig `yaml:"agenda_view,omitempty" json:"agenda_view,omitempty"`
}

const (
	defaultNumWeeks       = 12
	defaultToggleLocation = "header"
)

type MonthResolved struct {
	WeekStart      time.Weekday        `json:"week_start"`
	EventsSpanDays bool                `json:"events_span_days"`
	NumWeeks       int                 `json:"num_weeks"`
	Start          geometry.MonthStart `json:"month_calendar_start"`
}

type WeekResolved struct {
	WeekStart      time.Weekday      `json:"week_start"`
	EventsSpanDays bool              `json:"events_span_days"`
	Mode           geometry.WeekMode `json:"week_calendar_view"`
}

type AgendaResolved struct {
	WeekStart time.Weekday `json:"week_start"`
}

type WeatherResolved struct {
	Enabled      bool   `json:"enabled"`
	Entity       string `json:"entity,omitempty"`
	Features     int    `json:"supported_features"`
	ForecastType string `json:"forecast_type"`
}

// Resolved is the canonical card configuration every component reads.
type Resolved struct {
	Calendars      []model.Calendar  `json:"calendars"`
	View           geometry.ViewType `json:"view_type"`
	ShowControls   bool              `json:"show_interactive_controls"`
	ToggleLocation string            `json:"view_toggle_location"`
	RefreshMinutes int               `json:"event_refresh_interval"`
	RefreshCron    string            `json:"refresh_cron,omitempty"`
	TextSize       int               `json:"text_size,omitempty"`

	Month   MonthResolved   `json:"month_view"`
	Week    WeekResolved    `json:"week_view"`
	Agenda  AgendaResolved  `json:"agenda_view"`
	Weather WeatherResolved `json:"weather"`
}

// Resolve applies the aliasing rules once. Each setting is taken from the
// per-view section, then the flat legacy field, then the default.
// show_interactive_controls wins over show_view_toggle. Values Validate
// would reject fall back to their defaults.
func Resolve(c Card) Resolved {
	r := Resolved{
		Calendars:      c.Calendars,
		View:           geometry.ViewMonth,
		ToggleLocation: defaultToggleLocation,
		RefreshMinutes: refresh.DefaultInterval,
		RefreshCron:    c.RefreshCron,
		TextSize:       c.TextSize,
	}
	if v := geometry.ViewType(c.ViewType); v.Valid() {
		r.View = v
	}
	switch {
	case c.ShowInteractiveControls != nil:
		r.ShowControls = *c.ShowInteractiveControls
	case c.ShowViewToggle != nil:
		r.ShowControls = *c.ShowViewToggle
	}
	if c.ViewToggleLocation != "" {
		r.ToggleLocation = c.ViewToggleLocation
	}
	if c.EventRefreshInterval > 0 {
		r.RefreshMinutes = c.EventRefreshInterval
	}

	var mv MonthViewConfig
	if c.MonthView != nil {
		mv = *c.MonthView
	}
	r.Month = MonthResolved{
		WeekStart:      firstWeekday(mv.WeekStart, c.WeekStart),
		EventsSpanDays: firstBool(mv.EventsSpanDays, c.EventsSpanDays),
		NumWeeks:       firstPositive(mv.NumWeeks, c.NumWeeks, defaultNumWeeks),
		Start:          monthStart(mv.MonthCalendarStart, c.MonthCalendarStart),
	}

	var wv WeekViewConfig
	if c.WeekView != nil {
		wv = *c.WeekView
	}
	r.Week = WeekResolved{
		WeekStart:      firstWeekday(wv.WeekStart, c.WeekStart),
		EventsSpanDays: firstBool(wv.EventsSpanDays, c.EventsSpanDays),
		Mode:           weekMode(wv.WeekCalendarView, c.WeekCalendarView),
	}

	var av AgendaViewConfig
	if c.AgendaView != nil {
		av = *c.AgendaView
	}
	r.Agenda = AgendaResolved{WeekStart: firstWeekday(av.WeekStart, c.WeekStart)}

	r.Weather = WeatherResolved{
		Enabled:      c.EnableWeather && c.WeatherEntity != "",
		Entity:       c.WeatherEntity,
		Features:     c.WeatherFeatures,
		ForecastType: "daily",
	}
	if _, ok := weather.FeatureFor(c.ForecastType); ok {
		r.Weather.ForecastType = strings.ToLower(c.ForecastType)
	}
	return r
}

// WeekStartFor returns the week start of a view.
func (r Resolved) WeekStartFor(v geometry.ViewType) time.Weekday {
	switch v {
	case geometry.ViewWeek:
		return r.Week.WeekStart
	case geometry.ViewAgenda:
		return r.Agenda.WeekStart
	}
	return r.Month.WeekStart
}

// SpanDaysFor reports whether a view draws multi-day bars.
func (r Resolved) SpanDaysFor(v geometry.ViewType) bool {
	switch v {
	case geometry.ViewMonth:
		return r.Month.EventsSpanDays
	case geometry.ViewWeek:
		return r.Week.EventsSpanDays
	}
	return false
}

// Options builds the window options of view v at now.
func (r Resolved) Options(v geometry.ViewType, now time.Time) geometry.Options {
	return geometry.Options{
		WeekStart:  r.WeekStartFor(v),
		WeekMode:   r.Week.Mode,
		Now:        now,
		MonthStart: r.Month.Start,
		NumWeeks:   r.Month.NumWeeks,
	}
}

// Plan is the refresh plan the card asks for.
func (r Resolved) Plan() (refresh.Plan, error) {
	return refresh.PlanFor(r.RefreshMinutes, r.RefreshCron)
}

// CalendarIDs lists the configured entities in order.
func (r Resolved) CalendarIDs() []string {
	ids := make([]string, len(r.Calendars))
	for i, c := range r.Calendars {
		ids[i] = c.Entity
	}
	return ids
}

// Validate reports card values Resolve would silently replace.
func (c Card) Validate() error {
	var errs []error
	if c.ViewType != "" && !geometry.ViewType(c.ViewType).Valid() {
		errs = append(errs, fmt.Errorf("view_type %q: want month, week or agenda", c.ViewType))
	}
	for _, s := range []string{c.MonthCalendarStart, monthViewStart(c.MonthView)} {
		if s != "" && s != string(geometry.MonthFromCurrentWeek) && s != string(geometry.MonthFromStart) {
			errs = append(errs, fmt.Errorf("month_calendar_start %q: want current_week or start_of_month", s))
		}
	}
	for _, s := range []string{c.WeekCalendarView, weekViewMode(c.WeekView)} {
		switch geometry.WeekMode(s) {
		case "", geometry.WeekCurrent, geometry.WeekNext5Days, geometry.WeekNext7Days:
		default:
			errs = append(errs, fmt.Errorf("week_calendar_view %q: want current_week, next_5_days or next_7_days", s))
		}
	}
	if c.ForecastType != "" {
		if _, ok := weather.FeatureFor(c.ForecastType); !ok {
			errs = append(errs, fmt.Errorf("forecast_type %q: want daily, hourly or twice_daily", c.ForecastType))
		}
	}
	if c.EventRefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("event_refresh_interval %d must be positive", c.EventRefreshInterval))
	}
	if c.RefreshCron != "" {
		if _, err := refresh.CronPlan(c.RefreshCron); err != nil {
			errs = append(errs, err)
		}
	}
	seen := make(map[string]bool)
	for _, cal := range c.Calendars {
		if cal.Entity == "" {
			errs = append(errs, errors.New("calendar entry without entity"))
		} else if seen[cal.Entity] {
			errs = append(errs, fmt.Errorf("calendar %q listed twice", cal.Entity))
		}
		seen[cal.Entity] = true
	}
	return errors.Join(errs...)
}

func monthViewStart(mv *MonthViewConfig) string {
	if mv == nil {
		return ""
	}
	return mv.MonthCalendarStart
}

func weekViewMode(wv *WeekViewConfig) string {
	if wv == nil {
		return ""
	}
	return wv.WeekCalendarView
}

func firstWeekday(vals ...*Weekday) time.Weekday {
	for _, v := range vals {
		if v != nil {
			return v.Day
		}
	}
	return time.Sunday
}

func firstBool(vals ...*bool) bool {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return false
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func monthStart(vals ...string) geometry.MonthStart {
	for _, v := range vals {
		switch s := geometry.MonthStart(v); s {
		case geometry.MonthFromCurrentWeek, geometry.MonthFromStart:
			return s
		}
	}
	return geometry.MonthFromCurrentWeek
}

func weekMode(vals ...string) geometry.WeekMode {
	for _, v := range vals {
		switch m := geometry.WeekMode(v); m {
		case geometry.WeekCurrent, geometry.WeekNext5Days, geometry.WeekNext7Days:
			return m
		}
	}
	return geometry.WeekCurrent
}
