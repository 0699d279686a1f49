package realtime

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/roomsense-go/internal/conf"
	"github.com/tphakala/roomsense-go/internal/fusion"
)

// Command creates a new command for realtime presence fusion.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Run presence fusion in realtime mode",
		Long:  "Start fusing BLE, camera and GPS signals into live room presence.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fusion.RealtimeFusion(settings)
		},
	}

	// Set up flags specific to the 'realtime' command
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Realtime.MQTT.Broker, "broker", viper.GetString("realtime.mqtt.broker"), "MQTT broker URL for the BLE gateway bus")
	cmd.Flags().BoolVar(&settings.Realtime.MQTT.Enabled, "mqtt", viper.GetBool("realtime.mqtt.enabled"), "Enable BLE gateway MQTT ingestion")
	cmd.Flags().StringVar(&settings.Realtime.MQTT.TopicPrefix, "topicprefix", viper.GetString("realtime.mqtt.topicprefix"), "BLE gateway topic prefix")
	cmd.Flags().BoolVar(&settings.Realtime.WebServer.Enabled, "webserver", viper.GetBool("realtime.webserver.enabled"), "Enable the device tracker webhook and metrics endpoints")
	cmd.Flags().StringVar(&settings.Realtime.WebServer.Port, "port", viper.GetString("realtime.webserver.port"), "Web server listen port")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
