// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric exported by the service.
const Namespace = "incidenttracker"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks database connection pool state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	// DBPoolEmptyAcquires mirrors the pool's cumulative count of acquires
	// that found no idle connection.
	DBPoolEmptyAcquires = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_empty_acquires",
			Help:      "Cumulative acquires that waited for a connection",
		},
	)

	// DBPoolAcquireWaitSeconds mirrors the pool's cumulative acquire time.
	DBPoolAcquireWaitSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_acquire_wait_seconds",
			Help:      "Cumulative time spent acquiring connections",
		},
	)

	// IncidentsCreated counts created incidents.
	IncidentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "incidents",
			Name:      "created_total",
			Help:      "Total incidents created",
		},
	)

	// IncidentTransitions counts applied status transitions.
	IncidentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "incidents",
			Name:      "transitions_total",
			Help:      "Total incident status transitions",
		},
		[]string{"from", "to"},
	)

	// IncidentOperationsRejected counts operations refused by lifecycle rules.
	IncidentOperationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "incidents",
			Name:      "rejected_total",
			Help:      "Total incident operations rejected by validation or lifecycle rules",
		},
		[]string{"operation", "reason"},
	)
)
