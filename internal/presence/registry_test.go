package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/roomsense-go/internal/conf"
)

func TestRegistryLookups(t *testing.T) {
	reg, err := NewRegistry(testRooms())
	require.NoError(t, err)

	room, ok := reg.Room("office")
	require.True(t, ok)
	assert.Equal(t, "Office", room.Name)
	assert.Equal(t, "area_office", room.Area)

	_, ok = reg.Room("garage")
	assert.False(t, ok)

	id, ok := reg.RoomByGateway("kitchen")
	require.True(t, ok)
	assert.Equal(t, "kitchen", id)

	_, ok = reg.RoomByGateway("attic")
	assert.False(t, ok)

	id, ok = reg.RoomByCamera("camera.office")
	require.True(t, ok)
	assert.Equal(t, "office", id)

	_, ok = reg.RoomByCamera("camera.garage")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"office", "kitchen"}, reg.RoomIDs())
}

func TestRegistryDevices(t *testing.T) {
	reg, err := NewRegistry(testRooms())
	require.NoError(t, err)

	assert.Equal(t, []string{"light.office1", "light.office2"}, reg.Devices("office", DeviceLights))
	assert.Equal(t, []string{"switch.kettle"}, reg.Devices("kitchen", DeviceSwitches))
	assert.Empty(t, reg.Devices("office", DeviceMediaPlayers))
	assert.Nil(t, reg.Devices("garage", DeviceLights))
	assert.Nil(t, reg.Devices("office", DeviceKind("sensors")))
}

func TestRegistryDevicesReturnsCopy(t *testing.T) {
	reg, err := NewRegistry(testRooms())
	require.NoError(t, err)

	devices := reg.Devices("office", DeviceLights)
	require.Len(t, devices, 2)
	devices[0] = "light.mutated"

	assert.Equal(t, []string{"light.office1", "light.office2"}, reg.Devices("office", DeviceLights))

	room, ok := reg.Room("office")
	require.True(t, ok)
	fromRoom := room.Devices(DeviceLights)
	fromRoom[1] = "light.mutated"
	assert.Equal(t, []string{"light.office1", "light.office2"}, room.Lights)
}

func TestRegistryRejectsDuplicateRoomID(t *testing.T) {
	_, err := NewRegistry([]conf.RoomSettings{
		{ID: "office"},
		{ID: "office"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate room id")
}

func TestRegistryRejectsSharedGateway(t *testing.T) {
	_, err := NewRegistry([]conf.RoomSettings{
		{ID: "office", Gateways: []string{"hall"}},
		{ID: "kitchen", Gateways: []string{"hall"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway")
}

func TestRegistryRejectsSharedCamera(t *testing.T) {
	_, err := NewRegistry([]conf.RoomSettings{
		{ID: "office", Cameras: []string{"camera.shared"}},
		{ID: "kitchen", Cameras: []string{"camera.shared"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera")
}
