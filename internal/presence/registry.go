package presence

import (
	"fmt"

	"github.com/tphakala/roomsense-go/internal/conf"
)

// DeviceKind selects which entity list of a room a device query refers to.
type DeviceKind string

const (
	DeviceLights       DeviceKind = "lights"
	DeviceSwitches     DeviceKind = "switches"
	DeviceMediaPlayers DeviceKind = "media_players"
)

// RoomConfig is the static description of one physical room. Instances are
// built once from configuration and never mutated afterwards.
type RoomConfig struct {
	ID           string
	Name         string
	Area         string
	Lights       []string
	Switches     []string
	MediaPlayers []string
	Gateways     []string
	Cameras      []string
}

// Devices returns the entity ids of the requested kind located in the room.
// The returned slice is a copy; mutating it cannot corrupt the registry.
func (r *RoomConfig) Devices(kind DeviceKind) []string {
	switch kind {
	case DeviceLights:
		return append([]string(nil), r.Lights...)
	case DeviceSwitches:
		return append([]string(nil), r.Switches...)
	case DeviceMediaPlayers:
		return append([]string(nil), r.MediaPlayers...)
	default:
		return nil
	}
}

// Registry is the loaded-once room table with reverse indexes from BLE
// gateway labels and camera sources to room ids. It is immutable after
// construction and therefore safe for concurrent use without locking.
type Registry struct {
	rooms     map[string]*RoomConfig
	byGateway map[string]string
	byCamera  map[string]string
}

// NewRegistry builds a Registry from room configuration. Duplicate gateway
// or camera assignments across rooms are rejected, since a reverse lookup
// would otherwise be ambiguous.
func NewRegistry(rooms []conf.RoomSettings) (*Registry, error) {
	reg := &Registry{
		rooms:     make(map[string]*RoomConfig, len(rooms)),
		byGateway: make(map[string]string),
		byCamera:  make(map[string]string),
	}

	for i := range rooms {
		rs := &rooms[i]
		if _, exists := reg.rooms[rs.ID]; exists {
			return nil, fmt.Errorf("duplicate room id %q", rs.ID)
		}
		room := &RoomConfig{
			ID:           rs.ID,
			Name:         rs.Name,
			Area:         rs.Area,
			Lights:       append([]string(nil), rs.Lights...),
			Switches:     append([]string(nil), rs.Switches...),
			MediaPlayers: append([]string(nil), rs.MediaPlayers...),
			Gateways:     append([]string(nil), rs.Gateways...),
			Cameras:      append([]string(nil), rs.Cameras...),
		}
		reg.rooms[room.ID] = room

		for _, gw := range room.Gateways {
			if other, exists := reg.byGateway[gw]; exists {
				return nil, fmt.Errorf("gateway %q assigned to both rooms %q and %q", gw, other, room.ID)
			}
			reg.byGateway[gw] = room.ID
		}
		for _, cam := range room.Cameras {
			if other, exists := reg.byCamera[cam]; exists {
				return nil, fmt.Errorf("camera %q assigned to both rooms %q and %q", cam, other, room.ID)
			}
			reg.byCamera[cam] = room.ID
		}
	}

	return reg, nil
}

// Room returns the configuration for the given room id.
func (reg *Registry) Room(id string) (*RoomConfig, bool) {
	room, ok := reg.rooms[id]
	return room, ok
}

// RoomByGateway resolves a BLE gateway room label to an internal room id.
func (reg *Registry) RoomByGateway(label string) (string, bool) {
	id, ok := reg.byGateway[label]
	return id, ok
}

// RoomByCamera resolves a camera source id to an internal room id.
func (reg *Registry) RoomByCamera(source string) (string, bool) {
	id, ok := reg.byCamera[source]
	return id, ok
}

// Devices returns a copy of the entity ids of the requested kind in the
// given room, or nil when the room is unknown.
func (reg *Registry) Devices(roomID string, kind DeviceKind) []string {
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil
	}
	return room.Devices(kind)
}

// RoomIDs returns the ids of all configured rooms.
func (reg *Registry) RoomIDs() []string {
	ids := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		ids = append(ids, id)
	}
	return ids
}
