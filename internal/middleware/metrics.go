package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the edge middleware.
type Metrics struct {
	rateLimitAllowed  prometheus.Counter
	rateLimitRejected *prometheus.CounterVec
	rateLimitErrors   prometheus.Counter

	cacheRequests *prometheus.CounterVec

	panicsRecovered prometheus.Counter
}

var (
	middlewareMetrics     *Metrics
	middlewareMetricsOnce sync.Once
)

// GetMetrics returns the singleton middleware metrics instance.
func GetMetrics() *Metrics {
	middlewareMetricsOnce.Do(func() {
		middlewareMetrics = newMetrics()
	})
	return middlewareMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		rateLimitAllowed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "avaforum",
				Subsystem: "middleware",
				Name:      "rate_limit_allowed_total",
				Help:      "Total number of requests allowed by the rate limiter",
			},
		),
		rateLimitRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avaforum",
				Subsystem: "middleware",
				Name:      "rate_limit_rejected_total",
				Help:      "Total number of requests rejected by the rate limiter by window",
			},
			[]string{"window"},
		),
		rateLimitErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "avaforum",
				Subsystem: "middleware",
				Name:      "rate_limit_errors_total",
				Help:      "Total number of rate limit checks that failed open",
			},
		),
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avaforum",
				Subsystem: "middleware",
				Name:      "response_cache_requests_total",
				Help:      "Total number of response cache lookups by result",
			},
			[]string{"result"},
		),
		panicsRecovered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "avaforum",
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered",
			},
		),
	}
}

// MustRegister registers all middleware metrics with registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.rateLimitAllowed,
		m.rateLimitRejected,
		m.rateLimitErrors,
		m.cacheRequests,
		m.panicsRecovered,
	)
}
