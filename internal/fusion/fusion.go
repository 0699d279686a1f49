// Package fusion wires the presence engine together with its ingestion
// adapters and notification sinks for realtime operation.
package fusion

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tphakala/roomsense-go/internal/conf"
	"github.com/tphakala/roomsense-go/internal/httpserver"
	"github.com/tphakala/roomsense-go/internal/ingest"
	"github.com/tphakala/roomsense-go/internal/logging"
	"github.com/tphakala/roomsense-go/internal/observability"
	"github.com/tphakala/roomsense-go/internal/presence"
	"github.com/tphakala/roomsense-go/internal/sink"
)

// RealtimeFusion starts the presence service with every enabled adapter and
// sink and blocks until the process receives an interrupt.
func RealtimeFusion(settings *conf.Settings) error {
	logger := logging.ForService("fusion")

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	service, err := presence.New(settings, metrics.Presence)
	if err != nil {
		return fmt.Errorf("failed to create presence service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service.Start(ctx)
	defer service.Stop()

	// BLE gateway bus
	var gateway *ingest.GatewayClient
	if settings.Realtime.MQTT.Enabled {
		gateway = ingest.NewGatewayClient(settings, service, metrics.MQTT)
		connectCtx, connectCancel := context.WithTimeout(ctx, 45*time.Second)
		err := gateway.Connect(connectCtx)
		connectCancel()
		if err != nil {
			// The client keeps retrying in the background; readings start
			// flowing once the broker is reachable.
			logger.Warn("initial MQTT connection failed, retrying in background", "error", err)
		}
		defer gateway.Disconnect()
	}

	// Outbound sinks
	if settings.Realtime.Publish.MQTT.Enabled {
		if gateway == nil {
			logger.Warn("MQTT sink enabled but MQTT ingestion is disabled, sink skipped")
		} else {
			mqttSink := sink.NewMQTTSink(gateway, settings.Realtime.Publish.MQTT.Topic)
			if err := service.AddListener(mqttSink); err != nil {
				return fmt.Errorf("failed to register MQTT sink: %w", err)
			}
		}
	}
	if settings.Realtime.Publish.Redis.Enabled {
		redisSink, err := sink.NewRedisSink(settings)
		if err != nil {
			return fmt.Errorf("failed to create Redis sink: %w", err)
		}
		defer redisSink.Close()
		if err := service.AddListener(redisSink); err != nil {
			return fmt.Errorf("failed to register Redis sink: %w", err)
		}
	}

	// Device tracker webhook, health and metrics endpoints
	var server *httpserver.Server
	if settings.Realtime.WebServer.Enabled {
		gpsAdapter := ingest.NewDeviceTrackerAdapter(service)
		server = httpserver.New(settings.Realtime.WebServer.Port, gpsAdapter, metrics.Registry())
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("web server failed", "error", err)
				cancel()
			}
		}()
	}

	logger.Info("realtime presence fusion running", "name", settings.Main.Name)

	// Block until interrupted
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("web server shutdown failed", "error", err)
		}
	}

	return nil
}
