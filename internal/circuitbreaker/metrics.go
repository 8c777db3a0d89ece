package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerState shows the current state of circuit breakers.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	// BreakerRequestsTotal counts calls evaluated by circuit breakers.
	BreakerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_circuit_breaker_requests_total",
			Help: "Total number of calls evaluated by circuit breakers",
		},
		[]string{"provider", "result"},
	)

	// BreakerFailuresTotal counts failures recorded by circuit breakers.
	BreakerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_circuit_breaker_failures_total",
			Help: "Total number of failures recorded by circuit breakers",
		},
		[]string{"provider"},
	)

	// BreakerSuccessesTotal counts successes recorded by circuit breakers.
	BreakerSuccessesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_circuit_breaker_successes_total",
			Help: "Total number of successes recorded by circuit breakers",
		},
		[]string{"provider"},
	)

	// BreakerStateChangesTotal counts state changes.
	BreakerStateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_circuit_breaker_state_changes_total",
			Help: "Total number of circuit breaker state changes",
		},
		[]string{"provider", "from", "to"},
	)

	// BreakerRejectedTotal counts calls rejected due to an open circuit.
	BreakerRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_circuit_breaker_rejected_total",
			Help: "Total number of calls rejected due to open circuit",
		},
		[]string{"provider"},
	)
)

// RecordState records the current state of a circuit breaker.
func RecordState(name string, state State) {
	BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordRequest records a call evaluated by a circuit breaker.
func RecordRequest(name string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
		BreakerRejectedTotal.WithLabelValues(name).Inc()
	}
	BreakerRequestsTotal.WithLabelValues(name, result).Inc()
}

// RecordFailure records a failure.
func RecordFailure(name string) {
	BreakerFailuresTotal.WithLabelValues(name).Inc()
}

// RecordSuccess records a success.
func RecordSuccess(name string) {
	BreakerSuccessesTotal.WithLabelValues(name).Inc()
}

// RecordStateChange records a state change.
func RecordStateChange(name string, from, to State) {
	BreakerStateChangesTotal.WithLabelValues(name, from.String(), to.String()).Inc()
	RecordState(name, to)
}
