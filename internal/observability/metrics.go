package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surge_admissions_total",
			Help: "Queue apply outcomes",
		},
		[]string{"status"},
	)

	QueueWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "surge_queue_waiting",
			Help: "Live members per event queue",
		},
		[]string{"event_id"},
	)

	ActiveUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "surge_active_users",
			Help: "Admitted users currently inside the checkout path",
		},
	)

	SeatLockOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surge_seat_lock_ops_total",
			Help: "Seat lock manager operations",
		},
		[]string{"op", "result"},
	)

	PollBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "surge_poll_batch_size",
			Help:    "Users admitted per poll",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "surge_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
