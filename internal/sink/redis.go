package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tphakala/roomsense-go/internal/conf"
	"github.com/tphakala/roomsense-go/internal/logging"
	"github.com/tphakala/roomsense-go/internal/presence"
)

// RedisSink publishes committed room transitions to a Redis pub/sub
// channel. Pub/sub only: the engine keeps no durable storage.
type RedisSink struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisSink creates a Redis notification sink and verifies the
// connection.
func NewRedisSink(settings *conf.Settings) (*RedisSink, error) {
	cfg := settings.Realtime.Publish.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return &RedisSink{
		client:  client,
		channel: cfg.Channel,
		timeout: 5 * time.Second,
		logger:  logging.ForService("redis-sink"),
	}, nil
}

// Name implements presence.Listener.
func (s *RedisSink) Name() string { return "redis" }

// HandleRoomChange implements presence.Listener.
func (s *RedisSink) HandleRoomChange(change presence.RoomChange) error {
	payload, err := encodeChange(change)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish room change to Redis: %w", err)
	}

	s.logger.Debug("published room change",
		"channel", s.channel, "user", change.User, "new_room", change.NewRoom)
	return nil
}

// Close releases the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
