package router

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchesTotal counts dispatch calls by capability and outcome.
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Total number of dispatch calls by capability and outcome",
		},
		[]string{"capability", "outcome"},
	)

	// DispatchDuration observes end-to-end dispatch latency.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "End-to-end dispatch duration including failover attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"capability"},
	)

	// AttemptsTotal counts individual candidate attempts.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_provider_attempts_total",
			Help: "Total number of per-provider dispatch attempts",
		},
		[]string{"provider", "capability", "result"},
	)
)

// RecordDispatch records one completed dispatch call.
func RecordDispatch(capability, outcome string, duration time.Duration) {
	DispatchesTotal.WithLabelValues(capability, outcome).Inc()
	DispatchDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

// RecordAttempt records one candidate attempt.
func RecordAttempt(provider, capability, result string) {
	AttemptsTotal.WithLabelValues(provider, capability, result).Inc()
}
