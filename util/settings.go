package util

import (
	"crypto/rand"
	"fmt"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "PARKING"

var Config = viper.New()

var config_listeners []func()

func RegisterNewConfigListener(new_listener func()) {
	for _, listener := range config_listeners {
		if reflect.ValueOf(new_listener).Pointer() == reflect.ValueOf(listener).Pointer() {
			Logger.Warn().Msg("config listener already registered")
			return
		}
	}
	config_listeners = append(config_listeners, new_listener)
}

func OnNewConfig() {
	for _, listener := range config_listeners {
		listener()
	}
}

func GetRandString(n int) string {
	const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, n)
	for i := range b {
		randBytes := make([]byte, 1)
		if _, err := rand.Read(randBytes); err != nil {
			b[i] = letterBytes[i%len(letterBytes)]
		} else {
			b[i] = letterBytes[int(randBytes[0])%len(letterBytes)]
		}
	}
	return string(b)
}

// default sensor addresses of the reference three-bay installation
var defaultSlots = []map[string]any{
	{"name": "bay1", "address": 0x1A},
	{"name": "bay2", "address": 0x1B},
	{"name": "bay3", "address": 0x1C},
}

func setDefaults() {
	Config.SetDefault("Log_level", "info")
	Config.SetDefault("Broker_URI", "tcp://mqtt:1883")
	Config.SetDefault("Cleansess", false)
	Config.SetDefault("Id_base", "parking_controller")
	Config.SetDefault("Username", "")
	Config.SetDefault("Password", "")
	Config.SetDefault("Topic_prefix", "parking")
	Config.SetDefault("Details_port", 8080)
	Config.SetDefault("Simulate", false)
	Config.SetDefault("Simulate_interval", 5*time.Second)
	Config.SetDefault("Ha_advertise", true)

	Config.SetDefault("Slots", defaultSlots)
	Config.SetDefault("Tick_period", 25*time.Millisecond)
	Config.SetDefault("Blink_interval", 20)
	Config.SetDefault("Blink_count", 5)
	Config.SetDefault("Bus_timeout", 20*time.Millisecond)
	Config.SetDefault("Bus_retries", 0)
	Config.SetDefault("Sensor_failure_policy", "hold")
	Config.SetDefault("Startup_delay", time.Second)
}

func SetupConfig() {
	Config.SetEnvPrefix(ENV_PREFIX)
	setDefaults()

	// config file
	Config.SetConfigName("parking_controller")
	Config.AddConfigPath("/")
	Config.AddConfigPath("./")
	Config.AddConfigPath("./config")
	Config.AddConfigPath("/etc")
	Config.AddConfigPath("/parking_controller")
	Config.AddConfigPath("/parking_controller/config")

	err := Config.ReadInConfig()
	if err != nil {
		Logger.Error().Msgf("unable to read config file: %v", fmt.Errorf("%v", err))
	}

	// environment variables
	Config.AutomaticEnv()

	// watch for changes. Only listeners that are safe to re-run react; the lot
	// itself is fixed for the lifetime of the process.
	Config.WatchConfig()
	Config.OnConfigChange(func(e fsnotify.Event) {
		Logger.Info().Msgf("Config file changed: %v", e.Name)
		Logger.Debug().Msgf("Config Additional Info: %v", e.String())
		OnNewConfig()
	})
}
