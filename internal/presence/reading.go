// Package presence implements the room-level presence fusion engine: it
// fuses BLE proximity readings, camera person detections and coarse GPS
// state into a live per-user room estimate with hysteresis against flapping.
package presence

import (
	"time"
)

// Source identifies the kind of signal a reading originated from.
type Source int

const (
	SourceBLE    Source = iota // Bluetooth proximity beacon reading
	SourceCamera               // camera person-detection event
	SourceGPS                  // device tracker / geofence state
	SourceManual               // operator override
)

// String returns the wire and log representation of the source.
func (s Source) String() string {
	switch s {
	case SourceBLE:
		return "ble"
	case SourceCamera:
		return "camera"
	case SourceGPS:
		return "gps"
	case SourceManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Reading is one normalized observation of a user's candidate room. It is
// produced by a normalizer, consumed once by the tracker and then discarded.
type Reading struct {
	User        string  // user the observation is about
	Room        string  // candidate room id
	Source      Source  // signal kind that produced the reading
	Confidence  float64 // confidence in [0,1]
	Distance    float64 // meters, valid only when HasDistance is set
	HasDistance bool
	Timestamp   time.Time
}

// HistoryEntry records a room the user left and when, for diagnostics only.
type HistoryEntry struct {
	Room string
	Left time.Time
}

// UserPresence is the live per-user estimate. CurrentRoom is empty when the
// user has no confirmed room.
type UserPresence struct {
	UserID       string
	CurrentRoom  string
	Confidence   float64
	LastSeen     time.Time
	Source       Source
	History      []HistoryEntry
	PendingRoom  string
	PendingSince time.Time
}

// RoomState is the live per-room occupancy flag, mutated only as a side
// effect of committed room transitions.
type RoomState struct {
	RoomID     string
	Occupied   bool
	Confidence float64
	LastSeen   time.Time
	Source     Source
}

// RoomChange describes one committed room transition. OldRoom or NewRoom is
// empty when the user was, or became, vacant.
type RoomChange struct {
	User    string
	OldRoom string
	NewRoom string
	Source  Source
	Time    time.Time
}
