// Package httpserver exposes the inbound device-tracker webhook plus the
// health and metrics endpoints. The presence query API itself is not served
// over HTTP; callers consume the presence service directly.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tphakala/roomsense-go/internal/ingest"
	"github.com/tphakala/roomsense-go/internal/logging"
)

// Server is the webhook and diagnostics HTTP server.
type Server struct {
	echo    *echo.Echo
	port    string
	tracker *ingest.DeviceTrackerAdapter
	logger  *slog.Logger
}

// New creates the server and registers its routes.
func New(port string, tracker *ingest.DeviceTrackerAdapter, registry *prometheus.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		port:    port,
		tracker: tracker,
		logger:  logging.ForService("httpserver"),
	}

	e.POST("/api/v1/devicetracker", s.handleDeviceTracker)
	e.GET("/healthz", s.handleHealthz)
	if registry != nil {
		e.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	return s
}

// handleDeviceTracker receives one GPS/geofence update. Bad input is
// acknowledged and dropped; the webhook caller is an untrusted signal
// source and never sees an ingestion error.
func (s *Server) handleDeviceTracker(c echo.Context) error {
	var update ingest.DeviceTrackerUpdate
	if err := c.Bind(&update); err != nil {
		s.logger.Debug("malformed device tracker payload", "error", err)
		return c.NoContent(http.StatusBadRequest)
	}

	s.tracker.HandleUpdate(update)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Start runs the server until it fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting web server", "port", s.port)
	err := s.echo.Start(":" + s.port)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
