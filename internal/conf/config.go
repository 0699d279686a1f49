// config.go: This file contains the configuration for the RoomSense-Go application.
// It defines the settings struct and functions to load the settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// RoomSettings describes one physical room: its identity, the smart-home
// entities located in it and the sensors that observe it.
type RoomSettings struct {
	ID           string   // internal room id, e.g. "office"
	Name         string   // human readable display name
	Area         string   // smart-home area id the room maps to
	Lights       []string // light entity ids located in the room
	Switches     []string // switch entity ids located in the room
	MediaPlayers []string `mapstructure:"mediaplayers"` // media player entity ids
	Gateways     []string // BLE gateway ids whose readings target this room
	Cameras      []string // camera source ids that observe this room
}

// BLESettings contains settings for Bluetooth proximity ingestion.
type BLESettings struct {
	DistanceThreshold float64           // meters, readings beyond this yield zero confidence
	SmoothingWindow   int               // number of recent readings kept per user for smoothing
	Devices           map[string]string // BLE device id -> user id
	DefaultUser       string            // user assigned to devices missing from the table
}

// CameraSettings contains settings for camera detection ingestion.
type CameraSettings struct {
	DefaultConfidence float64 // confidence assumed when the detector reports none
}

// PresenceSettings contains the presence engine tuning parameters.
type PresenceSettings struct {
	Rooms          []RoomSettings
	BLE            BLESettings
	Camera         CameraSettings
	EnterThreshold float64       // minimum confidence for a reading to be considered
	ExitTimeout    time.Duration // user with no reading for this long is treated as vacant
	Hysteresis     time.Duration // dwell time before a room transition is committed
	SweepInterval  time.Duration // period of the stale sweeper
	HistoryLimit   int           // bounded per-user room history length
}

// MQTTSettings contains settings for the BLE gateway MQTT bus.
type MQTTSettings struct {
	Enabled     bool
	Broker      string // MQTT broker URL, e.g. tcp://localhost:1883
	Username    string
	Password    string
	TopicPrefix string // readings arrive on <prefix>/<room-label>/<device-id>
}

// PublishSettings contains settings for outbound room-change notification sinks.
type PublishSettings struct {
	MQTT struct {
		Enabled bool
		Topic   string
		Retain  bool
	}
	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		Channel  string
	}
}

// WebServerSettings contains settings for the inbound webhook and diagnostics server.
type WebServerSettings struct {
	Enabled bool
	Port    string
}

// RealtimeSettings contains all transport and sink settings.
type RealtimeSettings struct {
	MQTT      MQTTSettings
	Publish   PublishSettings
	WebServer WebServerSettings `mapstructure:"webserver"`
}

// Settings is the root configuration type, populated from config.yaml,
// environment and command-line flags through viper.
type Settings struct {
	Debug bool

	Main struct {
		Name     string // instance name, used as MQTT client id base
		LogLevel string `mapstructure:"loglevel"` // trace, debug, info, warn, error
	}

	Presence PresenceSettings
	Realtime RealtimeSettings
}

// Load reads the configuration into a validated Settings struct.
func Load() (*Settings, error) {
	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal config into settings struct
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create from the embedded default
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default configuration to the first
// config path and loads it.
func createDefaultConfig(configPath string) error {
	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.yaml")
	if err := os.WriteFile(configFile, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configFile)
	return viper.ReadInConfig()
}

// getDefaultConfig returns the embedded default configuration file contents.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// GetDefaultConfigPaths returns the locations searched for config.yaml:
// the user config directory first, then the working directory.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user config directory: %w", err)
	}

	return []string{
		filepath.Join(configDir, "roomsense-go"),
		".",
	}, nil
}
