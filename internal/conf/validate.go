// conf/validate.go sanity checks for loaded settings
package conf

import (
	"fmt"
)

// ValidateSettings checks the loaded configuration for values the presence
// engine cannot operate with. It returns the first problem found.
func ValidateSettings(settings *Settings) error {
	p := &settings.Presence

	if p.EnterThreshold < 0 || p.EnterThreshold > 1 {
		return fmt.Errorf("presence.enterthreshold must be within [0,1], got %v", p.EnterThreshold)
	}
	if p.BLE.DistanceThreshold <= 0 {
		return fmt.Errorf("presence.ble.distancethreshold must be positive, got %v", p.BLE.DistanceThreshold)
	}
	if p.BLE.SmoothingWindow < 1 {
		return fmt.Errorf("presence.ble.smoothingwindow must be at least 1, got %d", p.BLE.SmoothingWindow)
	}
	if p.BLE.DefaultUser == "" {
		return fmt.Errorf("presence.ble.defaultuser must not be empty")
	}
	if p.Hysteresis < 0 {
		return fmt.Errorf("presence.hysteresis must not be negative, got %v", p.Hysteresis)
	}
	if p.ExitTimeout <= 0 {
		return fmt.Errorf("presence.exittimeout must be positive, got %v", p.ExitTimeout)
	}
	if p.SweepInterval <= 0 {
		return fmt.Errorf("presence.sweepinterval must be positive, got %v", p.SweepInterval)
	}
	if p.HistoryLimit < 1 {
		return fmt.Errorf("presence.historylimit must be at least 1, got %d", p.HistoryLimit)
	}
	if p.Camera.DefaultConfidence < 0 || p.Camera.DefaultConfidence > 1 {
		return fmt.Errorf("presence.camera.defaultconfidence must be within [0,1], got %v", p.Camera.DefaultConfidence)
	}

	seen := make(map[string]bool, len(p.Rooms))
	for i := range p.Rooms {
		room := &p.Rooms[i]
		if room.ID == "" {
			return fmt.Errorf("presence.rooms[%d] is missing an id", i)
		}
		if seen[room.ID] {
			return fmt.Errorf("duplicate room id %q in presence.rooms", room.ID)
		}
		seen[room.ID] = true
	}

	if settings.Realtime.MQTT.Enabled && settings.Realtime.MQTT.Broker == "" {
		return fmt.Errorf("realtime.mqtt.broker must be set when MQTT ingestion is enabled")
	}
	if settings.Realtime.Publish.Redis.Enabled && settings.Realtime.Publish.Redis.Addr == "" {
		return fmt.Errorf("realtime.publish.redis.addr must be set when the Redis sink is enabled")
	}

	return nil
}
