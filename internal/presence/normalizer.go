package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/roomsense-go/internal/logging"
	"github.com/tphakala/roomsense-go/internal/observability/metrics"
)

// bleRoomCountWeight is the per-sample weight a room earns in the smoothing
// score for each reading it contributes inside the window. It biases the
// vote towards rooms observed repeatedly over rooms observed confidently
// but once, which suppresses single-sample multipath jitter.
const bleRoomCountWeight = 0.3

// NormalizerConfig holds the per-source normalization parameters.
type NormalizerConfig struct {
	DistanceThreshold float64           // meters, BLE readings beyond this yield zero confidence
	SmoothingWindow   int               // BLE samples kept per user
	Devices           map[string]string // BLE device id -> user id
	DefaultUser       string            // fallback user for untracked devices
	CameraConfidence  float64           // confidence assumed when the detector reports none
}

// bleSample is one raw BLE observation kept in a user's smoothing window.
type bleSample struct {
	room       string
	confidence float64
	distance   float64
}

// Normalizer converts raw per-source signals into common Reading values.
// Unmappable or malformed input is dropped with a diagnostic, never raised
// to the caller: producers are untrusted external signal sources.
//
// BLE readings additionally pass through a per-user smoothing window before
// a Reading is emitted.
type Normalizer struct {
	cfg      NormalizerConfig
	registry *Registry
	logger   *slog.Logger
	metrics  *metrics.PresenceMetrics
	clock    func() time.Time

	mu      sync.Mutex
	windows map[string][]bleSample
}

// NewNormalizer creates a normalizer backed by the given room registry.
// Metrics may be nil.
func NewNormalizer(cfg NormalizerConfig, registry *Registry, m *metrics.PresenceMetrics) *Normalizer {
	if cfg.SmoothingWindow < 1 {
		cfg.SmoothingWindow = 1
	}
	return &Normalizer{
		cfg:      cfg,
		registry: registry,
		logger:   logging.ForService("normalizer"),
		metrics:  m,
		clock:    time.Now,
		windows:  make(map[string][]bleSample),
	}
}

// NormalizeBLE converts one BLE distance sample into a smoothed Reading.
// The raw sample joins the user's smoothing window; the emitted reading
// targets the room with the best count/confidence score across the window,
// carrying that room's average confidence and distance. The second return
// value is false when the sample was dropped.
func (n *Normalizer) NormalizeBLE(deviceID, roomLabel string, distance float64, rssi int) (Reading, bool) {
	user, ok := n.cfg.Devices[deviceID]
	if !ok {
		user = n.cfg.DefaultUser
	}

	room, ok := n.registry.RoomByGateway(roomLabel)
	if !ok {
		n.dropped("unknown_room")
		n.logger.Debug("unknown BLE gateway room label",
			"label", roomLabel, "device", deviceID)
		return Reading{}, false
	}

	confidence := 1 - distance/n.cfg.DistanceThreshold
	if confidence < 0 {
		confidence = 0
	}
	n.logger.Debug("ble sample",
		"device", deviceID, "user", user, "room", room,
		"distance", distance, "rssi", rssi, "confidence", confidence)

	n.mu.Lock()
	window := append(n.windows[user], bleSample{room: room, confidence: confidence, distance: distance})
	if len(window) > n.cfg.SmoothingWindow {
		window = window[len(window)-n.cfg.SmoothingWindow:]
	}
	n.windows[user] = window
	best, avgConfidence, avgDistance := bestRoom(window)
	n.mu.Unlock()

	return Reading{
		User:        user,
		Room:        best,
		Source:      SourceBLE,
		Confidence:  avgConfidence,
		Distance:    avgDistance,
		HasDistance: true,
		Timestamp:   n.clock(),
	}, true
}

// bestRoom groups the window samples by room and picks the room with the
// highest count*weight + average-confidence score. Returns the winning room
// with its average confidence and distance.
func bestRoom(window []bleSample) (room string, avgConfidence, avgDistance float64) {
	type agg struct {
		count       int
		sumConf     float64
		sumDistance float64
	}
	byRoom := make(map[string]*agg)
	for i := range window {
		s := &window[i]
		a, ok := byRoom[s.room]
		if !ok {
			a = &agg{}
			byRoom[s.room] = a
		}
		a.count++
		a.sumConf += s.confidence
		a.sumDistance += s.distance
	}

	bestScore := -1.0
	for r, a := range byRoom {
		avg := a.sumConf / float64(a.count)
		score := float64(a.count)*bleRoomCountWeight + avg
		if score > bestScore {
			bestScore = score
			room = r
			avgConfidence = avg
			avgDistance = a.sumDistance / float64(a.count)
		}
	}
	return room, avgConfidence, avgDistance
}

// NormalizeCamera converts one camera person-detection event into a Reading.
// Track-lost events produce no reading: a track can be lost transiently
// without the person leaving, so room exit is the stale sweeper's job.
func (n *Normalizer) NormalizeCamera(source string, detected bool, trackID int, confidence float64) (Reading, bool) {
	if !detected {
		return Reading{}, false
	}

	room, ok := n.registry.RoomByCamera(source)
	if !ok {
		n.dropped("unknown_camera")
		n.logger.Debug("unknown camera source", "source", source, "track_id", trackID)
		return Reading{}, false
	}

	if confidence <= 0 {
		confidence = n.cfg.CameraConfidence
	}

	// Camera detections are not disambiguated per individual; they are
	// attributed to the default user. Known limitation.
	return Reading{
		User:       n.cfg.DefaultUser,
		Room:       room,
		Source:     SourceCamera,
		Confidence: confidence,
		Timestamp:  n.clock(),
	}, true
}

// NormalizeGPS interprets a device-tracker state update. It returns true
// when the state demands an unconditional clear-to-vacant override; any
// other state carries no room-level information and changes nothing.
func (n *Normalizer) NormalizeGPS(user, state string) bool {
	if state == "not_home" {
		return true
	}
	// home or a named zone: safety net only, no room estimate on its own.
	n.logger.Debug("gps state without room mapping", "user", user, "state", state)
	return false
}

func (n *Normalizer) dropped(reason string) {
	if n.metrics != nil {
		n.metrics.IncReadingsDropped(reason)
	}
}
