package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer; every recorder is a no-op then.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	samplesTotal      *prometheus.CounterVec
	samplesDropped    *prometheus.CounterVec
	snapshotsTotal    prometheus.Counter
	snapshotDuration  prometheus.Histogram
	currentLRI        *prometheus.GaugeVec
	connections       prometheus.Gauge
	windowsTotal      prometheus.Counter
	sessionsTotal     *prometheus.CounterVec
}

// NewMetrics registers every collector on a private registry, so tests can
// build as many instances as they like.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		samplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eeg_samples_total",
			Help: "EEG samples accepted from a stream source.",
		}, []string{"source"}),
		samplesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eeg_samples_dropped_total",
			Help: "EEG samples dropped because the dispatch queue was full.",
		}, []string{"source"}),
		snapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "band_power_snapshots_total",
			Help: "Band power snapshots published by real-time connections.",
		}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "band_power_compute_seconds",
			Help:    "Time spent estimating band power and LRI for one snapshot.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		currentLRI: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lri_current",
			Help: "Latest real-time Learning Readiness Index per connection.",
		}, []string{"connection"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_connections",
			Help: "Open real-time device connections.",
		}),
		windowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_windows_total",
			Help: "Windows produced by the batch windowing engine.",
		}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessions_analyzed_total",
			Help: "Batch sessions analysed, by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.samplesTotal,
		m.samplesDropped,
		m.snapshotsTotal,
		m.snapshotDuration,
		m.currentLRI,
		m.connections,
		m.windowsTotal,
		m.sessionsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// GinMiddleware records request counts and durations by matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) SampleReceived(source string) {
	if m == nil {
		return
	}
	m.samplesTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) SampleDropped(source string) {
	if m == nil {
		return
	}
	m.samplesDropped.WithLabelValues(source).Inc()
}

func (m *Metrics) SnapshotPublished(connection string, lri float64, took time.Duration) {
	if m == nil {
		return
	}
	m.snapshotsTotal.Inc()
	m.snapshotDuration.Observe(took.Seconds())
	m.currentLRI.WithLabelValues(connection).Set(lri)
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed also forgets the connection's LRI gauge.
func (m *Metrics) ConnectionClosed(connection string) {
	if m == nil {
		return
	}
	m.connections.Dec()
	m.currentLRI.DeleteLabelValues(connection)
}

func (m *Metrics) WindowsProduced(n int) {
	if m == nil {
		return
	}
	m.windowsTotal.Add(float64(n))
}

func (m *Metrics) SessionAnalyzed(success bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	m.sessionsTotal.WithLabelValues(outcome).Inc()
}
