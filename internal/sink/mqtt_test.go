package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/roomsense-go/internal/presence"
)

// fakePublisher records published payloads for assertions.
type fakePublisher struct {
	connected bool
	failWith  error
	topics    []string
	payloads  []string
}

func (p *fakePublisher) Publish(ctx context.Context, topic, payload string) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakePublisher) IsConnected() bool { return p.connected }

func testChange() presence.RoomChange {
	return presence.RoomChange{
		User:    "alice",
		OldRoom: "office",
		NewRoom: "kitchen",
		Source:  presence.SourceBLE,
		Time:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEncodeChange(t *testing.T) {
	payload, err := encodeChange(testChange())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, "alice", decoded["user"])
	assert.Equal(t, "office", decoded["old_room"])
	assert.Equal(t, "kitchen", decoded["new_room"])
	assert.Equal(t, "ble", decoded["source"])
	assert.Equal(t, "2025-06-01T12:00:00Z", decoded["time"])
}

func TestEncodeChangeOmitsEmptyRooms(t *testing.T) {
	change := testChange()
	change.OldRoom = ""
	change.NewRoom = ""

	payload, err := encodeChange(change)
	require.NoError(t, err)

	assert.NotContains(t, payload, "old_room")
	assert.NotContains(t, payload, "new_room")
}

func TestMQTTSinkPublishes(t *testing.T) {
	publisher := &fakePublisher{connected: true}
	s := NewMQTTSink(publisher, "roomsense/changes")

	require.NoError(t, s.HandleRoomChange(testChange()))

	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, "roomsense/changes", publisher.topics[0])
	assert.Contains(t, publisher.payloads[0], `"user":"alice"`)
}

func TestMQTTSinkReportsDisconnected(t *testing.T) {
	publisher := &fakePublisher{connected: false}
	s := NewMQTTSink(publisher, "roomsense/changes")

	err := s.HandleRoomChange(testChange())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
	assert.Empty(t, publisher.payloads)
}

func TestMQTTSinkPropagatesPublishError(t *testing.T) {
	publisher := &fakePublisher{connected: true, failWith: errors.New("broker gone")}
	s := NewMQTTSink(publisher, "roomsense/changes")

	err := s.HandleRoomChange(testChange())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
}

func TestSinkNames(t *testing.T) {
	assert.Equal(t, "mqtt", NewMQTTSink(nil, "t").Name())
}
