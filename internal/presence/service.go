package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/roomsense-go/internal/conf"
	"github.com/tphakala/roomsense-go/internal/logging"
	"github.com/tphakala/roomsense-go/internal/observability/metrics"
)

// Service is the explicitly constructed presence engine instance: registry,
// normalizer, state machine, listener bus and stale sweeper behind one
// ingestion and query facade. It is handed to ingestion adapters and query
// callers instead of living as a package global.
type Service struct {
	settings   *conf.Settings
	registry   *Registry
	normalizer *Normalizer
	tracker    *Tracker
	bus        *Bus
	logger     *slog.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// New builds a presence service from settings. Metrics may be nil.
func New(settings *conf.Settings, m *metrics.PresenceMetrics) (*Service, error) {
	registry, err := NewRegistry(settings.Presence.Rooms)
	if err != nil {
		return nil, fmt.Errorf("invalid room configuration: %w", err)
	}

	bus := NewBus(DefaultBusConfig(), m)

	tracker := NewTracker(TrackerConfig{
		EnterThreshold: settings.Presence.EnterThreshold,
		Hysteresis:     settings.Presence.Hysteresis,
		ExitTimeout:    settings.Presence.ExitTimeout,
		HistoryLimit:   settings.Presence.HistoryLimit,
	}, bus, m)

	normalizer := NewNormalizer(NormalizerConfig{
		DistanceThreshold: settings.Presence.BLE.DistanceThreshold,
		SmoothingWindow:   settings.Presence.BLE.SmoothingWindow,
		Devices:           settings.Presence.BLE.Devices,
		DefaultUser:       settings.Presence.BLE.DefaultUser,
		CameraConfidence:  settings.Presence.Camera.DefaultConfidence,
	}, registry, m)

	return &Service{
		settings:   settings,
		registry:   registry,
		normalizer: normalizer,
		tracker:    tracker,
		bus:        bus,
		logger:     logging.ForService("presence"),
	}, nil
}

// Start launches the listener bus workers and the stale sweeper.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.bus.Start(ctx)

	interval := s.settings.Presence.SweepInterval
	s.wg.Add(1)
	go s.sweepLoop(ctx, interval)

	s.logger.Info("presence service started",
		"rooms", len(s.registry.rooms),
		"sweep_interval", interval,
		"hysteresis", s.settings.Presence.Hysteresis,
		"exit_timeout", s.settings.Presence.ExitTimeout,
	)
}

// sweepLoop periodically expires presence data for users who have produced
// no reading within the exit timeout.
func (s *Service) sweepLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("sweeper stopping")
			return
		case <-ticker.C:
			if n := s.tracker.Sweep(); n > 0 {
				s.logger.Debug("sweep vacated stale users", "count", n)
			}
		}
	}
}

// Stop halts the sweeper and drains the listener bus. The read side remains
// safe to query afterwards.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false

	s.cancel()
	s.wg.Wait()
	if err := s.bus.Shutdown(5 * time.Second); err != nil {
		s.logger.Warn("listener bus did not drain cleanly", "error", err)
	}
	s.logger.Info("presence service stopped")
}

// --- ingestion facade ---

// ProcessBLE ingests one raw BLE distance sample from a gateway.
func (s *Service) ProcessBLE(deviceID, roomLabel string, distance float64, rssi int) {
	if r, ok := s.normalizer.NormalizeBLE(deviceID, roomLabel, distance, rssi); ok {
		s.tracker.Apply(r)
	}
}

// ProcessCamera ingests one camera person-detection event.
func (s *Service) ProcessCamera(source string, detected bool, trackID int, confidence float64) {
	if r, ok := s.normalizer.NormalizeCamera(source, detected, trackID, confidence); ok {
		s.tracker.Apply(r)
	}
}

// ProcessGPS ingests one device-tracker state update. A not_home state
// clears the user's room immediately, bypassing hysteresis; other states
// change nothing.
func (s *Service) ProcessGPS(user, state string, latitude, longitude float64) {
	_ = latitude
	_ = longitude
	if s.normalizer.NormalizeGPS(user, state) {
		s.tracker.ClearRoom(user, SourceGPS)
	}
}

// SetUserRoom is the manual override: it places the user in the given room
// immediately, bypassing hysteresis. The room must exist in the registry.
func (s *Service) SetUserRoom(user, room string) error {
	if _, ok := s.registry.Room(room); !ok {
		return fmt.Errorf("unknown room %q", room)
	}
	s.tracker.SetRoom(user, room)
	return nil
}

// ClearUserRoom is the manual override counterpart of SetUserRoom.
func (s *Service) ClearUserRoom(user string) {
	s.tracker.ClearRoom(user, SourceManual)
}

// --- query facade ---

// CurrentRoom returns the user's confirmed room id, or empty when unknown,
// vacant or stale.
func (s *Service) CurrentRoom(user string) string {
	return s.tracker.CurrentRoom(user)
}

// Presence returns a copy of the user's presence record.
func (s *Service) Presence(user string) (UserPresence, bool) {
	return s.tracker.Presence(user)
}

// GetRoomState returns a copy of the live occupancy record for the room.
func (s *Service) GetRoomState(roomID string) (RoomState, bool) {
	return s.tracker.GetRoomState(roomID)
}

// AllRoomStates returns a snapshot of every room occupancy record.
func (s *Service) AllRoomStates() map[string]RoomState {
	return s.tracker.AllRoomStates()
}

// AllUserPresence returns a snapshot of every user presence record.
func (s *Service) AllUserPresence() map[string]UserPresence {
	return s.tracker.AllUserPresence()
}

// DevicesNearUser resolves the user's current room and returns the entity
// ids of the requested kind in it, or an empty list when the user has no
// current room.
func (s *Service) DevicesNearUser(user string, kind DeviceKind) []string {
	room := s.tracker.CurrentRoom(user)
	if room == "" {
		return []string{}
	}
	devices := s.registry.Devices(room, kind)
	if devices == nil {
		return []string{}
	}
	return devices
}

// AddListener registers a listener invoked on every committed transition.
func (s *Service) AddListener(l Listener) error {
	return s.bus.AddListener(l)
}

// Registry returns the immutable room registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// BusStats returns listener bus statistics for diagnostics.
func (s *Service) BusStats() BusStats {
	return s.bus.Stats()
}
