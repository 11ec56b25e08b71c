// README: Dispatch engine counters shared by the notify, radius and dispatch packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Notification outcomes.
const (
	OutcomeDelivered  = "delivered"
	OutcomeFailed     = "failed"
	OutcomeSuppressed = "suppressed"
	OutcomeDuplicate  = "duplicate"
	OutcomeDropped    = "dropped"
)

var (
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_notifications_total",
			Help: "Notifications handled by the scheduler and transports, by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	WavesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_waves_scheduled_total",
		Help: "Escalation waves scheduled",
	})

	RadiusExpansions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_radius_expansions_total",
			Help: "Radius steps applied to incidents, by level",
		},
		[]string{"level"},
	)

	ResolutionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_candidate_resolution_failures_total",
		Help: "Escalation waves skipped because the candidate pool could not be resolved",
	})

	ActiveIncidents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_active_incidents",
		Help: "Incidents currently escalating in this process",
	})

	Commitments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_commitments_total",
			Help: "Accept attempts, by result",
		},
		[]string{"result"},
	)

	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_realtime_connections",
		Help: "Open websocket connections",
	})

	ResponseTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_response_time_seconds",
		Help:    "Time from incident creation to the first commitment",
		Buckets: []float64{5, 10, 20, 30, 60, 120, 300, 600},
	})
)
