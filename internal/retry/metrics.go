package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetriesTotal counts retry attempts performed by the transport layer.
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_retries_total",
			Help: "Total number of retry attempts performed after a failed call",
		},
	)
)

// RecordRetry records one retry attempt.
func RecordRetry() {
	RetriesTotal.Inc()
}
