package ingest

import (
	"log/slog"

	"github.com/tphakala/roomsense-go/internal/logging"
	"github.com/tphakala/roomsense-go/internal/presence"
)

// CameraEventType is the kind of event emitted by the detection pipeline
// for one object track.
type CameraEventType int

const (
	CameraEventNewTrack CameraEventType = iota
	CameraEventTrackUpdate
	CameraEventTrackLost
)

// CameraEvent is one detection-pipeline event for an object track.
type CameraEvent struct {
	Source     string // camera source id
	Type       CameraEventType
	TrackID    int
	Class      string  // detector object class, e.g. "person"
	Confidence float64 // detector confidence, 0 when unreported
}

// CameraAdapter feeds person-detection events into the presence service.
type CameraAdapter struct {
	service *presence.Service
	logger  *slog.Logger
}

// NewCameraAdapter creates a camera adapter.
func NewCameraAdapter(service *presence.Service) *CameraAdapter {
	return &CameraAdapter{
		service: service,
		logger:  logging.ForService("camera-ingest"),
	}
}

// HandleEvent processes one detection-pipeline event. Only person-class
// events are relevant; everything else is ignored. A lost track is passed
// through as detected=false, which produces no reading: transient track
// loss must not vacate the room, the stale sweeper owns room exit.
func (a *CameraAdapter) HandleEvent(ev CameraEvent) {
	if ev.Class != "person" {
		return
	}
	if ev.Source == "" {
		a.logger.Debug("camera event without source", "track_id", ev.TrackID)
		return
	}

	detected := ev.Type != CameraEventTrackLost
	a.service.ProcessCamera(ev.Source, detected, ev.TrackID, ev.Confidence)
}
