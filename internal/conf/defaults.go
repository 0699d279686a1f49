// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "RoomSense-Go")
	viper.SetDefault("main.loglevel", "info")

	viper.SetDefault("presence.enterthreshold", 0.6)
	viper.SetDefault("presence.exittimeout", 60*time.Second)
	viper.SetDefault("presence.hysteresis", 5*time.Second)
	viper.SetDefault("presence.sweepinterval", 10*time.Second)
	viper.SetDefault("presence.historylimit", 20)

	viper.SetDefault("presence.ble.distancethreshold", 3.0)
	viper.SetDefault("presence.ble.smoothingwindow", 5)
	viper.SetDefault("presence.ble.devices", map[string]string{})
	viper.SetDefault("presence.ble.defaultuser", "default")

	viper.SetDefault("presence.camera.defaultconfidence", 0.8)

	viper.SetDefault("realtime.mqtt.enabled", false)
	viper.SetDefault("realtime.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("realtime.mqtt.username", "")
	viper.SetDefault("realtime.mqtt.password", "")
	viper.SetDefault("realtime.mqtt.topicprefix", "roomsense/ble")

	viper.SetDefault("realtime.publish.mqtt.enabled", false)
	viper.SetDefault("realtime.publish.mqtt.topic", "roomsense/presence")
	viper.SetDefault("realtime.publish.mqtt.retain", false)

	viper.SetDefault("realtime.publish.redis.enabled", false)
	viper.SetDefault("realtime.publish.redis.addr", "localhost:6379")
	viper.SetDefault("realtime.publish.redis.password", "")
	viper.SetDefault("realtime.publish.redis.db", 0)
	viper.SetDefault("realtime.publish.redis.channel", "roomsense:presence")

	viper.SetDefault("realtime.webserver.enabled", true)
	viper.SetDefault("realtime.webserver.port", "8090")
}
