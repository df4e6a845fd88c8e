// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	ObservationsUpserted  *prometheus.CounterVec // labels: data_type, outcome
	IngestionRunsTotal    *prometheus.CounterVec // labels: status
	IngestionSeriesErrors *prometheus.CounterVec // labels: data_type

	// Change feed metrics
	FeedEventsDelivered prometheus.Counter
	FeedEventsDropped   prometheus.Counter
	FeedSubscribers     prometheus.Gauge
	FeedReconnects      prometheus.Counter

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec // labels: route, method, status

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered
// on the default registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_data"
	}

	return &Metrics{
		ObservationsUpserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "observations_upserted_total",
			Help:      "Observations written by the ingestion job, by data type and outcome",
		}, []string{"data_type", "outcome"}),
		IngestionRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "runs_total",
			Help:      "Ingestion runs, by completion status",
		}, []string{"status"}),
		IngestionSeriesErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "series_errors_total",
			Help:      "Per-series fetch or store failures during ingestion runs",
		}, []string{"data_type"}),

		FeedEventsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_delivered_total",
			Help:      "Insert events delivered to subscribers",
		}),
		FeedEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_dropped_total",
			Help:      "Insert events dropped because a subscriber buffer was full",
		}),
		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Active change feed subscriptions",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "listener_reconnects_total",
			Help:      "Times the LISTEN connection was re-established",
		}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),

		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix time of the last ingestion run that completed without errors",
		}),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
