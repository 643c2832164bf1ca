// Package metrics provides Prometheus collectors for ingestion and queries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors, registered on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	PointsWritten  *prometheus.CounterVec
	PointsDropped  *prometheus.CounterVec
	FeedFailures   *prometheus.CounterVec
	InvalidPoints  *prometheus.CounterVec
	SupplyFailures *prometheus.CounterVec
	SinkErrors     *prometheus.CounterVec
	IngestRuns     *prometheus.CounterVec
	IngestDuration prometheus.Histogram
	LastIngestion  prometheus.Gauge
	PrunedPoints   prometheus.Counter

	// Query
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec

	// Stream
	StreamClients prometheus.Gauge
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "chain_prices"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PointsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "points_written_total",
			Help:      "Price points accepted by the store",
		}, []string{"asset"}),
		PointsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "points_dropped_total",
			Help:      "Price points the store reported as unprocessed or failed to write",
		}, []string{"asset"}),
		FeedFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "feed_failures_total",
			Help:      "Price feed reads that failed",
		}, []string{"asset"}),
		InvalidPoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "invalid_points_total",
			Help:      "Observations discarded for a non-finite price or bad timestamp",
		}, []string{"asset"}),
		SupplyFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "supply_failures_total",
			Help:      "Token supply reads that failed; the point is kept without market cap",
		}, []string{"asset"}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "sink_errors_total",
			Help:      "Errors publishing fresh points to downstream sinks",
		}, []string{"sink"}),
		IngestRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingestion cycles by outcome",
		}, []string{"status"}),
		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Ingestion cycle duration",
			Buckets:   prometheus.DefBuckets,
		}),
		LastIngestion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that wrote at least one point",
		}),
		PrunedPoints: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "pruned_points_total",
			Help:      "Points removed by retention pruning",
		}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Series query duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "errors_total",
			Help:      "Per-asset series query failures",
		}, []string{"asset"}),

		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveQuery records the duration of a query started at start.
func (m *Metrics) ObserveQuery(kind string, start time.Time) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
