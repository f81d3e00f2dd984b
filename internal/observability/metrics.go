// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "duckweb"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Backtest metrics
	BacktestRuns     *prometheus.CounterVec
	BacktestDuration *prometheus.HistogramVec
	BarsLoaded       prometheus.Counter
	TradesSimulated  *prometheus.CounterVec

	// Storage metrics
	StoreQueryDuration *prometheus.HistogramVec
	StoreQueryErrors   *prometheus.CounterVec

	// Gather metrics
	BarsGathered  *prometheus.CounterVec
	GatherErrors  *prometheus.CounterVec
	LastGatherRun prometheus.Gauge

	// API metrics
	HTTPRequests    *prometheus.CounterVec
	WSStreamsActive prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on its own registry,
// together with the Go and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BacktestRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest requests by status",
		}, []string{"status"}),
		BacktestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "duration_seconds",
			Help:      "Backtest request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"indicator"}),
		BarsLoaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "bars_loaded_total",
			Help:      "Total number of bars loaded for backtests",
		}),
		TradesSimulated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trades_simulated_total",
			Help:      "Total number of simulated trades by exit reason",
		}, []string{"reason"}),

		StoreQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "query_duration_seconds",
			Help:      "Bar store call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		StoreQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "query_errors_total",
			Help:      "Total number of bar store errors",
		}, []string{"operation"}),

		BarsGathered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gather",
			Name:      "bars_total",
			Help:      "Total number of bars fetched from the provider by series",
		}, []string{"series"}),
		GatherErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gather",
			Name:      "errors_total",
			Help:      "Total number of failed provider fetches by symbol",
		}, []string{"symbol"}),
		LastGatherRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gather",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of last successful gather run",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status code",
		}, []string{"route", "code"}),
		WSStreamsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "ws_streams_active",
			Help:      "Number of open backtest websocket streams",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordBacktest records one backtest request. A nil receiver is a no-op so
// callers can leave metrics unset.
func (m *Metrics) RecordBacktest(status string, bars int) {
	if m == nil {
		return
	}
	m.BacktestRuns.WithLabelValues(status).Inc()
	m.BarsLoaded.Add(float64(bars))
}

// ObserveIndicator records the sweep duration of one indicator configuration.
func (m *Metrics) ObserveIndicator(indicator string, d time.Duration) {
	if m == nil {
		return
	}
	m.BacktestDuration.WithLabelValues(indicator).Observe(d.Seconds())
}

// RecordTrade counts a simulated trade by exit reason.
func (m *Metrics) RecordTrade(reason string) {
	if m == nil {
		return
	}
	m.TradesSimulated.WithLabelValues(reason).Inc()
}

// RecordStoreCall records a bar store call.
func (m *Metrics) RecordStoreCall(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StoreQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.StoreQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordGathered counts bars fetched for a series.
func (m *Metrics) RecordGathered(series string, n int) {
	if m == nil {
		return
	}
	m.BarsGathered.WithLabelValues(series).Add(float64(n))
}

// RecordGatherError counts a failed fetch for symbol.
func (m *Metrics) RecordGatherError(symbol string) {
	if m == nil {
		return
	}
	m.GatherErrors.WithLabelValues(symbol).Inc()
}

// MarkGatherSuccess stamps the last successful gather run.
func (m *Metrics) MarkGatherSuccess(at time.Time) {
	if m == nil {
		return
	}
	m.LastGatherRun.Set(float64(at.Unix()))
}

// RecordRequest counts an API request.
func (m *Metrics) RecordRequest(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}

// StreamOpened and StreamClosed track open websocket streams.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.WSStreamsActive.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.WSStreamsActive.Dec()
}
