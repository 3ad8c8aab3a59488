package notifications

import (
	"time"

	"github.com/bissquit/incident-tracker/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "queue_size",
			Help:      "Number of notifications waiting in queue",
		},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total notifications processed",
		},
		[]string{"channel_type", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to send notification",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel_type"},
	)

	notificationAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "delivery_attempts",
			Help:      "Attempts spent on a notification by final outcome",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		},
		[]string{"channel_type", "outcome"},
	)

	notificationsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "queue_fetched_total",
			Help:      "Total notifications fetched from queue before send attempt",
		},
	)
)

func recordNotificationSent(channelType, status string) {
	notificationsSent.WithLabelValues(channelType, status).Inc()
}

func recordNotificationDuration(channelType string, duration time.Duration) {
	notificationSendDuration.WithLabelValues(channelType).Observe(duration.Seconds())
}

// recordFinalAttempts observes how many attempts an item used once it leaves
// the retry loop for good.
func recordFinalAttempts(channelType, outcome string, attempts int) {
	notificationAttempts.WithLabelValues(channelType, outcome).Observe(float64(attempts))
}

func recordQueueFetched(count int) {
	notificationsFetched.Add(float64(count))
}
