package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "latinevents"

// Metrics holds Prometheus metrics for the service.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	FeedLoads        *prometheus.CounterVec
	FeedLoadDuration prometheus.Histogram
	FeedEvents       prometheus.Gauge
	FeedDroppedRows  prometheus.Counter

	ActiveSessions prometheus.Gauge
	RefreshRuns    *prometheus.CounterVec

	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// New creates the service metrics on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FeedLoads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "loads_total",
				Help:      "Feed loads by result",
			},
			[]string{"result"},
		),
		FeedLoadDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "load_duration_seconds",
				Help:      "Time to fetch and normalize the events feed",
				Buckets:   prometheus.DefBuckets,
			},
		),
		FeedEvents: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "events",
				Help:      "Number of events in the last successful load",
			},
		),
		FeedDroppedRows: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "dropped_rows_total",
				Help:      "Parsed rows discarded for an unparsable date or as duplicates",
			},
		),
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Number of live sessions",
			},
		),
		RefreshRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refresh",
				Name:      "runs_total",
				Help:      "Crawler runs triggered through the refresh endpoint",
			},
			[]string{"result"},
		),
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "code"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		RequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFeedLoad records one feed load. events and dropped are only
// meaningful when err is nil.
func (m *Metrics) ObserveFeedLoad(d time.Duration, events, dropped int, err error) {
	if m == nil {
		return
	}
	m.FeedLoadDuration.Observe(d.Seconds())
	if err != nil {
		m.FeedLoads.WithLabelValues("error").Inc()
		return
	}
	m.FeedLoads.WithLabelValues("ok").Inc()
	m.FeedEvents.Set(float64(events))
	m.FeedDroppedRows.Add(float64(dropped))
}

// SetActiveSessions records the live session count.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// ObserveRefresh records a crawler run outcome.
func (m *Metrics) ObserveRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.RefreshRuns.WithLabelValues(result).Inc()
}

// Middleware instruments next under the given route label.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
