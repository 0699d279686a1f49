package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/roomsense-go/internal/conf"
	"github.com/tphakala/roomsense-go/internal/presence"
)

func ingestSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Main.Name = "roomsense"
	settings.Presence.Rooms = []conf.RoomSettings{
		{ID: "office", Gateways: []string{"office"}, Cameras: []string{"camera.office"}},
		{ID: "kitchen", Gateways: []string{"kitchen"}, Cameras: []string{"camera.kitchen"}},
	}
	settings.Presence.EnterThreshold = 0.6
	settings.Presence.ExitTimeout = 60 * time.Second
	settings.Presence.Hysteresis = 0 // commit on the second reading in tests
	settings.Presence.SweepInterval = time.Minute
	settings.Presence.HistoryLimit = 20
	settings.Presence.BLE.DistanceThreshold = 3.0
	settings.Presence.BLE.SmoothingWindow = 1
	settings.Presence.BLE.Devices = map[string]string{"aa:bb": "alice"}
	settings.Presence.BLE.DefaultUser = "default"
	settings.Presence.Camera.DefaultConfidence = 0.8
	settings.Realtime.MQTT.Broker = "tcp://localhost:1883"
	settings.Realtime.MQTT.TopicPrefix = "roomsense/ble/"
	return settings
}

func newIngestService(t *testing.T) *presence.Service {
	t.Helper()
	svc, err := presence.New(ingestSettings(), nil)
	require.NoError(t, err)
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc
}

// fakeMessage implements mqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestParseGatewayTopic(t *testing.T) {
	tests := []struct {
		name       string
		topic      string
		wantRoom   string
		wantDevice string
		wantOK     bool
	}{
		{"well formed", "roomsense/ble/office/aa:bb", "office", "aa:bb", true},
		{"wrong prefix", "other/ble/office/aa:bb", "", "", false},
		{"missing device", "roomsense/ble/office", "", "", false},
		{"extra level", "roomsense/ble/office/aa:bb/extra", "", "", false},
		{"empty room", "roomsense/ble//aa:bb", "", "", false},
		{"empty device", "roomsense/ble/office/", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, device, ok := parseGatewayTopic("roomsense/ble", tt.topic)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantRoom, room)
			assert.Equal(t, tt.wantDevice, device)
		})
	}
}

func TestGatewayClientTrimsTopicPrefix(t *testing.T) {
	client := NewGatewayClient(ingestSettings(), nil, nil)
	assert.Equal(t, "roomsense/ble", client.config.TopicPrefix)
}

func TestGatewayClientReconnectCooldown(t *testing.T) {
	client := NewGatewayClient(ingestSettings(), nil, nil)
	client.lastConnAttempt = time.Now()

	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection attempt too recent")
}

func TestGatewayClientRejectsInvalidBroker(t *testing.T) {
	settings := ingestSettings()
	settings.Realtime.MQTT.Broker = "tcp://invalid.invalid:1883"
	client := NewGatewayClient(settings, nil, nil)

	err := client.Connect(context.Background())
	require.Error(t, err)
}

func TestOnMessageFeedsPresence(t *testing.T) {
	svc := newIngestService(t)
	client := NewGatewayClient(ingestSettings(), svc, nil)

	msg := &fakeMessage{
		topic:   "roomsense/ble/office/aa:bb",
		payload: []byte(`{"distance":0.5,"rssi":-58}`),
	}
	client.onMessage(nil, msg)
	client.onMessage(nil, msg)

	assert.Equal(t, "office", svc.CurrentRoom("alice"))
}

func TestOnMessageDropsMalformedInput(t *testing.T) {
	svc := newIngestService(t)
	client := NewGatewayClient(ingestSettings(), svc, nil)

	for _, msg := range []*fakeMessage{
		{topic: "roomsense/ble/office", payload: []byte(`{"distance":0.5}`)},
		{topic: "roomsense/ble/office/aa:bb", payload: []byte(`not json`)},
		{topic: "roomsense/ble/office/aa:bb", payload: []byte(`{"rssi":-58}`)},
	} {
		client.onMessage(nil, msg)
		client.onMessage(nil, msg)
	}

	assert.Empty(t, svc.CurrentRoom("alice"))
	assert.Empty(t, svc.AllUserPresence())
}

func TestPublishRequiresConnection(t *testing.T) {
	client := NewGatewayClient(ingestSettings(), nil, nil)

	err := client.Publish(context.Background(), "roomsense/changes", "{}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestCameraAdapterFiltersClasses(t *testing.T) {
	svc := newIngestService(t)
	adapter := NewCameraAdapter(svc)

	// Non-person tracks carry no presence information.
	for i := 0; i < 2; i++ {
		adapter.HandleEvent(CameraEvent{
			Source: "camera.kitchen", Type: CameraEventNewTrack,
			TrackID: 1, Class: "cat", Confidence: 0.9,
		})
	}
	assert.Empty(t, svc.CurrentRoom("default"))

	for i := 0; i < 2; i++ {
		adapter.HandleEvent(CameraEvent{
			Source: "camera.kitchen", Type: CameraEventTrackUpdate,
			TrackID: 2, Class: "person", Confidence: 0.9,
		})
	}
	assert.Equal(t, "kitchen", svc.CurrentRoom("default"))
}

func TestCameraAdapterTrackLostKeepsRoom(t *testing.T) {
	svc := newIngestService(t)
	adapter := NewCameraAdapter(svc)

	for i := 0; i < 2; i++ {
		adapter.HandleEvent(CameraEvent{
			Source: "camera.office", Type: CameraEventNewTrack,
			TrackID: 1, Class: "person", Confidence: 0.9,
		})
	}
	require.Equal(t, "office", svc.CurrentRoom("default"))

	adapter.HandleEvent(CameraEvent{
		Source: "camera.office", Type: CameraEventTrackLost,
		TrackID: 1, Class: "person",
	})
	assert.Equal(t, "office", svc.CurrentRoom("default"))
}

func TestDeviceTrackerAdapter(t *testing.T) {
	svc := newIngestService(t)
	adapter := NewDeviceTrackerAdapter(svc)

	require.NoError(t, svc.SetUserRoom("alice", "office"))

	// Incomplete updates change nothing.
	adapter.HandleUpdate(DeviceTrackerUpdate{User: "alice"})
	adapter.HandleUpdate(DeviceTrackerUpdate{State: "not_home"})
	assert.Equal(t, "office", svc.CurrentRoom("alice"))

	adapter.HandleUpdate(DeviceTrackerUpdate{User: "alice", State: "not_home"})
	assert.Empty(t, svc.CurrentRoom("alice"))
}
