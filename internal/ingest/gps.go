package ingest

import (
	"log/slog"

	"github.com/tphakala/roomsense-go/internal/logging"
	"github.com/tphakala/roomsense-go/internal/presence"
)

// DeviceTrackerUpdate is one GPS/geofence state update for a user's device.
// State is "home", "not_home" or a named zone.
type DeviceTrackerUpdate struct {
	User      string  `json:"user"`
	State     string  `json:"state"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// DeviceTrackerAdapter feeds coarse GPS/geofence state into the presence
// service. Only the not_home state carries room-level meaning; it vacates
// the user immediately as the full-departure safety net.
type DeviceTrackerAdapter struct {
	service *presence.Service
	logger  *slog.Logger
}

// NewDeviceTrackerAdapter creates a device tracker adapter.
func NewDeviceTrackerAdapter(service *presence.Service) *DeviceTrackerAdapter {
	return &DeviceTrackerAdapter{
		service: service,
		logger:  logging.ForService("gps-ingest"),
	}
}

// HandleUpdate processes one device-tracker update. Updates without a user
// or state are dropped with a diagnostic.
func (a *DeviceTrackerAdapter) HandleUpdate(u DeviceTrackerUpdate) {
	if u.User == "" || u.State == "" {
		a.logger.Debug("incomplete device tracker update",
			"user", u.User, "state", u.State)
		return
	}
	a.service.ProcessGPS(u.User, u.State, u.Latitude, u.Longitude)
}
