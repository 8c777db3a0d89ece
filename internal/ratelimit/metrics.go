package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth shows the current number of queued calls.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_ratelimit_queue_depth",
			Help: "Current number of calls waiting in the admission queue",
		},
	)

	// AdmittedTotal counts calls admitted through the limiter.
	AdmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_ratelimit_admitted_total",
			Help: "Total number of calls admitted through the rate limiter",
		},
	)

	// DelayedTotal counts delay rounds spent waiting for a window reset.
	DelayedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_ratelimit_delayed_total",
			Help: "Total number of delay rounds spent waiting for quota",
		},
	)

	// MinuteWindowCount shows the count consumed in the current minute window.
	MinuteWindowCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_ratelimit_minute_window_count",
			Help: "Calls consumed in the current minute window",
		},
	)

	// DayWindowCount shows the count consumed in the current day window.
	DayWindowCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_ratelimit_day_window_count",
			Help: "Calls consumed in the current day window",
		},
	)
)

// RecordQueueDepth records the current queue depth.
func RecordQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

// RecordAdmitted records one admitted call.
func RecordAdmitted() {
	AdmittedTotal.Inc()
}

// RecordDelayed records one delay round.
func RecordDelayed() {
	DelayedTotal.Inc()
}

// RecordWindowCounts records the current window counters.
func RecordWindowCounts(minute, day int) {
	MinuteWindowCount.Set(float64(minute))
	DayWindowCount.Set(float64(day))
}
