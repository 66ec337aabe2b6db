// Package metrics exposes Prometheus collectors for calendar fetches,
// refresh fires and push subscriptions. A nil *Metrics is a no-op.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dashcal"

type Metrics struct {
	registry *prometheus.Registry

	fetches        *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	fetchedEvents  prometheus.Gauge
	refreshFires   prometheus.Counter
	staleResults   prometheus.Counter
	subscribeTries *prometheus.CounterVec
	exhausted      prometheus.Counter
}

// New registers the collectors on a private registry. withRuntime adds
// the Go and process collectors.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: namespace}),
		)
	}

	m := &Metrics{
		registry: reg,
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Calendar fetches by calendar and result.",
		}, []string{"calendar", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Calendar fetch latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"calendar"}),
		fetchedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events",
			Help:      "Events in the current list.",
		}),
		refreshFires: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "fires_total",
			Help:      "Scheduled refreshes fired.",
		}),
		staleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "stale_results_total",
			Help:      "Fetch results dropped because a newer fetch was already applied.",
		}),
		subscribeTries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscribe",
			Name:      "attempts_total",
			Help:      "Push subscription attempts by result.",
		}, []string{"result"}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscribe",
			Name:      "exhausted_total",
			Help:      "Subscriptions that gave up after the last retry.",
		}),
	}
	reg.MustRegister(m.fetches, m.fetchDuration, m.fetchedEvents, m.refreshFires,
		m.staleResults, m.subscribeTries, m.exhausted)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveFetch(calendarID string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(calendarID, result).Inc()
	m.fetchDuration.WithLabelValues(calendarID).Observe(took.Seconds())
}

func (m *Metrics) SetEvents(n int) {
	if m == nil {
		return
	}
	m.fetchedEvents.Set(float64(n))
}

func (m *Metrics) RefreshFired() {
	if m == nil {
		return
	}
	m.refreshFires.Inc()
}

func (m *Metrics) StaleResult() {
	if m == nil {
		return
	}
	m.staleResults.Inc()
}

func (m *Metrics) SubscribeAttempt(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.subscribeTries.WithLabelValues(result).Inc()
}

func (m *Metrics) SubscribeExhausted() {
	if m == nil {
		return
	}
	m.exhausted.Inc()
}
