package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	submissionsTotal      *prometheus.CounterVec
	evaluationsTotal      *prometheus.CounterVec
	notificationsTotal    *prometheus.CounterVec
	websocketClientsGauge prometheus.Gauge
	rateLimitedTotal      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "explab_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "explab_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "explab_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "explab_submissions_total",
			Help: "Total number of recorded submissions by task kind.",
		}, []string{"kind"})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "explab_evaluations_total",
			Help: "Total number of evaluations by task kind and resulting status.",
		}, []string{"kind", "status"})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "explab_notifications_total",
			Help: "Total number of notifications by outcome.",
		}, []string{"outcome"})

		websocketClientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "explab_notification_websocket_clients",
			Help: "Number of connected notification websocket clients.",
		})

		rateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "explab_rate_limited_total",
			Help: "Total number of requests rejected by a rate limiter.",
		}, []string{"limiter"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			submissionsTotal,
			evaluationsTotal,
			notificationsTotal,
			websocketClientsGauge,
			rateLimitedTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// RecordSubmission counts a stored submission.
func RecordSubmission(kind string) {
	RegisterMetrics()
	submissionsTotal.WithLabelValues(kind).Inc()
}

// RecordEvaluation counts an evaluation outcome.
func RecordEvaluation(kind, status string) {
	RegisterMetrics()
	evaluationsTotal.WithLabelValues(kind, status).Inc()
}

// RecordNotification counts a notification delivery attempt.
func RecordNotification(outcome string) {
	RegisterMetrics()
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// WebsocketClients exposes the gauge of connected notification streams.
func WebsocketClients() prometheus.Gauge {
	RegisterMetrics()
	return websocketClientsGauge
}

// RecordRateLimited counts a request rejected by the named limiter.
func RecordRateLimited(limiter string) {
	RegisterMetrics()
	rateLimitedTotal.WithLabelValues(limiter).Inc()
}

// MetricsHandler serves the default registry, including the judge collectors,
// in OpenMetrics format when the scraper asks for it.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
