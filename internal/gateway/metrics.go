package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: end-to-end time per request, upstream included
	RequestDuration *prometheus.HistogramVec

	// Traffic: total processed requests
	TotalRequests *prometheus.CounterVec

	// Errors: failures by class
	ErrorTotal *prometheus.CounterVec

	// Saturation: circuit breaker per provider (0 closed, 1 open)
	CircuitBreakerState *prometheus.GaugeVec

	// Backpressure: usage recorder buffer fill
	UsageBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null object: without a registry the metrics still work, they just
	// go nowhere. Keeps tests free of registration conflicts.
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Histogram of request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"provider_id", "model", "status"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of processed requests.",
		}, []string{"provider_id", "model"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_errors_total",
			Help: "Total number of errors by class.",
		}, []string{"class"}), // classes: 4xx, 5xx, 429, timeout, not_servable

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"provider_id"}),

		UsageBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "gateway_usage_buffer_utilization",
			Help: "Current number of observations in the usage recorder buffer.",
		}),
	}
}
