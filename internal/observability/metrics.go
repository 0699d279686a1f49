// Package observability provides metrics and monitoring capabilities for the
// RoomSense-Go application.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tphakala/roomsense-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Presence *metrics.PresenceMetrics
	MQTT     *metrics.MQTTMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	presenceMetrics, err := metrics.NewPresenceMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create presence metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Presence: presenceMetrics,
		MQTT:     mqttMetrics,
	}, nil
}

// Registry returns the Prometheus registry backing all collectors, for
// exposing the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
