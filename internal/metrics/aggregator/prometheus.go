package aggregator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "avaforum"
	subsystem = "pipeline"
)

type promMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	slowRequests    *prometheus.CounterVec
}

func newPromMetrics() *promMetrics {
	return &promMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of pipeline executions by request type and outcome",
			},
			[]string{"request_type", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Pipeline execution duration in seconds",
				Buckets: []float64{
					.005, .01, .025, .05, .1,
					.25, .5, 1, 2, 5, 10,
				},
			},
			[]string{"request_type"},
		),
		slowRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "slow_requests_total",
				Help:      "Total number of executions that exceeded their slow threshold",
			},
			[]string{"request_type"},
		),
	}
}

func (m *promMetrics) observe(requestType string, d time.Duration, succeeded bool) {
	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	m.requestsTotal.WithLabelValues(requestType, outcome).Inc()
	m.requestDuration.WithLabelValues(requestType).Observe(d.Seconds())
}

// MustRegister registers the pipeline collectors on registry.
func (a *Aggregator) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		a.prom.requestsTotal,
		a.prom.requestDuration,
		a.prom.slowRequests,
	)
}
