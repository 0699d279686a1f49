// Package metrics provides custom Prometheus metrics for various components
// of the RoomSense-Go application.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PresenceMetrics contains all Prometheus metrics related to the presence engine.
type PresenceMetrics struct {
	ReadingsProcessed    *prometheus.CounterVec
	ReadingsDropped      *prometheus.CounterVec
	TransitionsCommitted prometheus.Counter
	PendingStarted       prometheus.Counter
	UsersVacated         prometheus.Counter
	SweepRuns            prometheus.Counter
	ListenerErrors       prometheus.Counter
	ChangesDropped       prometheus.Counter
	TrackedUsers         prometheus.Gauge
	registry             *prometheus.Registry
}

// NewPresenceMetrics creates a new instance of PresenceMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewPresenceMetrics(registry *prometheus.Registry) (*PresenceMetrics, error) {
	m := &PresenceMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize presence metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register presence metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for PresenceMetrics.
func (m *PresenceMetrics) initMetrics() error {
	m.ReadingsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_readings_processed_total",
		Help: "Total number of normalized readings fed to the state machine, by source",
	}, []string{"source"})

	m.ReadingsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_readings_dropped_total",
		Help: "Total number of raw signals dropped before the state machine, by reason",
	}, []string{"reason"})

	m.TransitionsCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_transitions_committed_total",
		Help: "Total number of committed room transitions",
	})

	m.PendingStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_pending_started_total",
		Help: "Total number of times a pending room candidate was set or replaced",
	})

	m.UsersVacated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_users_vacated_total",
		Help: "Total number of users cleared to vacant by the stale sweeper",
	})

	m.SweepRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_sweep_runs_total",
		Help: "Total number of stale sweeper runs",
	})

	m.ListenerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_listener_errors_total",
		Help: "Total number of listener callback failures",
	})

	m.ChangesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "presence_changes_dropped_total",
		Help: "Total number of room-change notifications dropped due to a full bus buffer",
	})

	m.TrackedUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_tracked_users",
		Help: "Number of users with a presence record",
	})

	return nil
}

// IncReadingsProcessed increments the processed-readings counter for a source.
func (m *PresenceMetrics) IncReadingsProcessed(source string) {
	m.ReadingsProcessed.WithLabelValues(source).Inc()
}

// IncReadingsDropped increments the dropped-readings counter for a reason.
func (m *PresenceMetrics) IncReadingsDropped(reason string) {
	m.ReadingsDropped.WithLabelValues(reason).Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *PresenceMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ReadingsProcessed.Collect(ch)
	m.ReadingsDropped.Collect(ch)
	ch <- m.TransitionsCommitted
	ch <- m.PendingStarted
	ch <- m.UsersVacated
	ch <- m.SweepRuns
	ch <- m.ListenerErrors
	ch <- m.ChangesDropped
	ch <- m.TrackedUsers
}

// Describe implements the prometheus.Collector interface.
func (m *PresenceMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ReadingsProcessed.Describe(ch)
	m.ReadingsDropped.Describe(ch)
	ch <- m.TransitionsCommitted.Desc()
	ch <- m.PendingStarted.Desc()
	ch <- m.UsersVacated.Desc()
	ch <- m.SweepRuns.Desc()
	ch <- m.ListenerErrors.Desc()
	ch <- m.ChangesDropped.Desc()
	ch <- m.TrackedUsers.Desc()
}
