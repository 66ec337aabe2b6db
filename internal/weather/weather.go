// Package weather holds the forecast data the calendar attaches to days.
// Rendering weather is left to the presentation layer.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dashcal/internal/dates"
	"dashcal/internal/subscribe"
)

// EventType is the push subscription a forecast stream arrives on.
const EventType = "weather/subscribe_forecast"

// Feature is a bit of a weather entity's supported_features mask.
type Feature int

const (
	FeatureDaily      Feature = 1
	FeatureHourly     Feature = 2
	FeatureTwiceDaily Feature = 4
)

func Supports(mask int, f Feature) bool {
	return mask&int(f) != 0
}

// DefaultForecastType picks hourly, then daily, then twice_daily.
func DefaultForecastType(mask int) string {
	switch {
	case Supports(mask, FeatureHourly):
		return "hourly"
	case Supports(mask, FeatureDaily):
		return "daily"
	case Supports(mask, FeatureTwiceDaily):
		return "twice_daily"
	}
	return ""
}

// FeatureFor maps a forecast type name to its feature bit.
func FeatureFor(forecastType string) (Feature, bool) {
	switch strings.ToLower(forecastType) {
	case "daily":
		return FeatureDaily, true
	case "hourly":
		return FeatureHourly, true
	case "twice_daily":
		return FeatureTwiceDaily, true
	}
	return 0, false
}

// Forecast is one forecast entry; absent readings stay nil.
type Forecast struct {
	Datetime                 string   `json:"datetime"`
	Temperature              float64  `json:"temperature"`
	TempLow                  *float64 `json:"templow,omitempty"`
	Precipitation            *float64 `json:"precipitation,omitempty"`
	PrecipitationProbability *float64 `json:"precipitation_probability,omitempty"`
	Humidity                 *float64 `json:"humidity,omitempty"`
	Condition                string   `json:"condition,omitempty"`
	IsDaytime                *bool    `json:"is_daytime,omitempty"`
	Pressure                 *float64 `json:"pressure,omitempty"`
	WindSpeed                string   `json:"wind_speed,omitempty"`
}

// Event is a forecast push payload.
type Event struct {
	Type     string     `json:"type"`
	Forecast []Forecast `json:"forecast"`
}

// Index maps a local date ("2006-01-02") to its forecast.
type Index map[string]Forecast

// Decode parses a payload and indexes its entries by local day. Later
// entries of the same day win, except that a night entry never replaces
// one already indexed, so twice_daily streams keep the daytime half.
// Entries with unreadable datetimes are skipped.
func Decode(payload []byte, loc *time.Location) (Index, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	ix := make(Index, len(ev.Forecast))
	for _, f := range ev.Forecast {
		t, err := time.Parse(time.RFC3339, f.Datetime)
		if err != nil {
			continue
		}
		key := t.In(loc).Format(dates.DateLayout)
		if _, seen := ix[key]; seen && f.IsDaytime != nil && !*f.IsDaytime {
			continue
		}
		ix[key] = f
	}
	return ix, nil
}

// For returns the forecast of day's local date.
func (ix Index) For(day time.Time) (Forecast, bool) {
	f, ok := ix[day.Format(dates.DateLayout)]
	return f, ok
}

// Target is the weather entity a calendar subscribes to and the forecast
// granularity it asks for. An empty ForecastType means daily.
type Target struct {
	Entity            string
	SupportedFeatures int
	ForecastType      string
}

func (t Target) forecastType() string {
	if t.ForecastType == "" {
		return "daily"
	}
	return strings.ToLower(t.ForecastType)
}

// CheckCapability returns subscribe.ErrUnsupported unless the entity
// publishes the requested forecast type.
func (t Target) CheckCapability() error {
	ft := t.forecastType()
	f, ok := FeatureFor(ft)
	if !ok {
		return fmt.Errorf("%w: unknown forecast type %q", subscribe.ErrUnsupported, ft)
	}
	if Supports(t.SupportedFeatures, f) {
		return nil
	}
	err := fmt.Errorf("%w: weather entity %q does not support %s forecasts", subscribe.ErrUnsupported, t.Entity, ft)
	if alt := DefaultForecastType(t.SupportedFeatures); alt != "" {
		err = fmt.Errorf("%w (it offers %s)", err, alt)
	}
	return err
}

// Params are the subscription parameters of the forecast stream.
func (t Target) Params() map[string]string {
	return map[string]string{
		"forecast_type": t.forecastType(),
		"entity_id":     t.Entity,
	}
}

// Guard wraps a subscriber so every attempt first checks the entity's
// capability; an unsupported entity fails the attempt with
// subscribe.ErrUnsupported.
func (t Target) Guard(inner subscribe.Subscriber) subscribe.Subscriber {
	return subscribe.SubscriberFunc(func(ctx context.Context, eventType string, params map[string]string, cb func([]byte)) (subscribe.Unsubscribe, error) {
		if err := t.CheckCapability(); err != nil {
			return nil, err
		}
		return inner.Subscribe(ctx, eventType, params, cb)
	})
}
