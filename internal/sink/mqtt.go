// Package sink contains outbound room-change notification sinks. Each sink
// is a presence.Listener: it receives committed transitions from the bus
// and forwards them to an external collaborator.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tphakala/roomsense-go/internal/logging"
	"github.com/tphakala/roomsense-go/internal/presence"
)

// Publisher is the transport a MQTT sink publishes through. Implemented by
// the ingest gateway client so the broker connection is shared.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) error
	IsConnected() bool
}

// roomChangeMessage is the JSON body published for one committed transition.
type roomChangeMessage struct {
	User    string `json:"user"`
	OldRoom string `json:"old_room,omitempty"`
	NewRoom string `json:"new_room,omitempty"`
	Source  string `json:"source"`
	Time    string `json:"time"`
}

func encodeChange(change presence.RoomChange) (string, error) {
	body, err := json.Marshal(roomChangeMessage{
		User:    change.User,
		OldRoom: change.OldRoom,
		NewRoom: change.NewRoom,
		Source:  change.Source.String(),
		Time:    change.Time.Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode room change: %w", err)
	}
	return string(body), nil
}

// MQTTSink publishes committed room transitions to an MQTT topic.
type MQTTSink struct {
	publisher Publisher
	topic     string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewMQTTSink creates an MQTT notification sink.
func NewMQTTSink(publisher Publisher, topic string) *MQTTSink {
	return &MQTTSink{
		publisher: publisher,
		topic:     topic,
		timeout:   10 * time.Second,
		logger:    logging.ForService("mqtt-sink"),
	}
}

// Name implements presence.Listener.
func (s *MQTTSink) Name() string { return "mqtt" }

// HandleRoomChange implements presence.Listener.
func (s *MQTTSink) HandleRoomChange(change presence.RoomChange) error {
	if !s.publisher.IsConnected() {
		return fmt.Errorf("mqtt publisher not connected")
	}

	payload, err := encodeChange(change)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		return fmt.Errorf("failed to publish room change: %w", err)
	}

	s.logger.Debug("published room change",
		"topic", s.topic, "user", change.User, "new_room", change.NewRoom)
	return nil
}
