package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. Each instance
// carries its own registry so tests can construct metrics freely.
type Metrics struct {
	registry *prometheus.Registry

	PagesFetched  *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec
	Aggregations  *prometheus.CounterVec
	FetchDuration prometheus.Histogram

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_pages_fetched_total",
			Help: "The total number of leaderboard pages fetched",
		}, []string{"method"}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_fetch_errors_total",
			Help: "The total number of page fetch errors",
		}, []string{"type"}), // e.g. 'get_failed', 'post_failed'
		Aggregations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_aggregations_total",
			Help: "The total number of aggregation runs by outcome",
		}, []string{"outcome"}), // 'completed', 'cancelled', 'failed'
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leaderboard_fetch_duration_seconds",
			Help:    "Duration of single page fetches",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// Handler exposes this instance's registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncPagesFetched(method string) {
	m.PagesFetched.WithLabelValues(method).Inc()
}

func (m *Metrics) IncFetchErrors(errorType string) {
	m.FetchErrors.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncAggregations(outcome string) {
	m.Aggregations.WithLabelValues(outcome).Inc()
}
