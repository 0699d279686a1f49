// Package ingest contains the adapters that feed external signal streams
// into the presence engine: the BLE gateway MQTT subscriber, the camera
// detection adapter and the GPS/device-tracker adapter.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/tphakala/roomsense-go/internal/conf"
	"github.com/tphakala/roomsense-go/internal/logging"
	"github.com/tphakala/roomsense-go/internal/observability/metrics"
	"github.com/tphakala/roomsense-go/internal/presence"
)

// MQTTConfig holds the configuration for the BLE gateway MQTT client.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string // readings arrive on <prefix>/<room-label>/<device-id>

	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// bleMessage is the JSON payload published by a BLE gateway. RSSI is
// optional; a payload without a distance is ignored.
type bleMessage struct {
	Distance *float64 `json:"distance"`
	RSSI     int      `json:"rssi"`
}

// GatewayClient subscribes to the BLE gateway message bus and feeds distance
// samples into the presence service. It also exposes Publish so outbound
// sinks can share the broker connection.
type GatewayClient struct {
	config          MQTTConfig
	service         *presence.Service
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         *metrics.MQTTMetrics
	logger          *slog.Logger
}

// NewGatewayClient creates an MQTT client for the BLE gateway bus.
// Metrics may be nil.
func NewGatewayClient(settings *conf.Settings, service *presence.Service, m *metrics.MQTTMetrics) *GatewayClient {
	return &GatewayClient{
		config: MQTTConfig{
			Broker:            settings.Realtime.MQTT.Broker,
			ClientID:          fmt.Sprintf("%s-%s", settings.Main.Name, uuid.NewString()[:8]),
			Username:          settings.Realtime.MQTT.Username,
			Password:          settings.Realtime.MQTT.Password,
			TopicPrefix:       strings.TrimSuffix(settings.Realtime.MQTT.TopicPrefix, "/"),
			ReconnectCooldown: 5 * time.Second,
			ConnectTimeout:    30 * time.Second,
			PublishTimeout:    10 * time.Second,
			DisconnectTimeout: 250 * time.Millisecond,
		},
		service: service,
		metrics: m,
		logger:  logging.ForService("ble-ingest"),
	}
}

// Connect attempts to establish a connection to the MQTT broker and
// subscribe to the gateway topic tree. Reconnects and resubscription are
// handled by the underlying client.
func (c *GatewayClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.lastConnAttempt) < c.config.ReconnectCooldown {
		return fmt.Errorf("connection attempt too recent, last attempt was %v ago", time.Since(c.lastConnAttempt))
	}
	c.lastConnAttempt = time.Now()

	// Parse the broker URL
	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}

	host := u.Hostname()

	// Check if the host is an IP address
	if net.ParseIP(host) == nil {
		// It's not an IP address, so attempt to resolve it
		_, err = net.DefaultResolver.LookupHost(ctx, host)
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) {
				return dnsErr
			}
			return fmt.Errorf("failed to resolve hostname %s: %w", host, err)
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection error: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
	return nil
}

// onConnect subscribes to the gateway topic tree. Called on every
// (re)connection so subscriptions survive broker restarts.
func (c *GatewayClient) onConnect(client mqtt.Client) {
	c.logger.Info("connected to MQTT broker", "broker", c.config.Broker)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}

	topic := c.config.TopicPrefix + "/+/+"
	token := client.Subscribe(topic, 0, c.onMessage)
	if !token.WaitTimeout(c.config.ConnectTimeout) || token.Error() != nil {
		c.logger.Error("failed to subscribe to gateway topic",
			"topic", topic, "error", token.Error())
		if c.metrics != nil {
			c.metrics.IncrementErrors()
		}
		return
	}
	c.logger.Info("subscribed to BLE gateway topic", "topic", topic)
}

func (c *GatewayClient) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Warn("connection to MQTT broker lost", "broker", c.config.Broker, "error", err)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
		c.metrics.IncrementErrors()
		c.metrics.IncrementReconnectAttempts()
	}
}

// onMessage handles one raw gateway message. Malformed topics and payloads
// are dropped with a diagnostic; nothing propagates back to the broker.
func (c *GatewayClient) onMessage(client mqtt.Client, msg mqtt.Message) {
	if c.metrics != nil {
		c.metrics.IncrementMessagesReceived()
	}

	roomLabel, deviceID, ok := parseGatewayTopic(c.config.TopicPrefix, msg.Topic())
	if !ok {
		c.logger.Debug("unexpected gateway topic", "topic", msg.Topic())
		return
	}

	var payload bleMessage
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		c.logger.Debug("malformed gateway payload",
			"topic", msg.Topic(), "error", err)
		return
	}
	if payload.Distance == nil {
		c.logger.Debug("gateway payload missing distance", "topic", msg.Topic())
		return
	}

	c.service.ProcessBLE(deviceID, roomLabel, *payload.Distance, payload.RSSI)
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *GatewayClient) Publish(ctx context.Context, topic, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return fmt.Errorf("not connected to MQTT broker")
	}

	token := c.internalClient.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(c.config.PublishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		if c.metrics != nil {
			c.metrics.IncrementErrors()
		}
		return err
	}

	if c.metrics != nil {
		c.metrics.IncrementMessagesDelivered()
	}
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *GatewayClient) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *GatewayClient) Disconnect() {
	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		if c.metrics != nil {
			c.metrics.UpdateConnectionStatus(false)
		}
	}
}

// parseGatewayTopic extracts the room label and device id from a topic of
// the form <prefix>/<room-label>/<device-id>.
func parseGatewayTopic(prefix, topic string) (roomLabel, deviceID string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
