package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ENV_PREFIX = "pvboiler"

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baudrate", 9600)
	v.SetDefault("serial.timeout_millis", 300)
	v.SetDefault("heater.unit_id", 33)
	v.SetDefault("heater.device_type", 0xE5E1)
	v.SetDefault("heater.dwell_time_seconds", 60)
	v.SetDefault("heater.large_step_watts", 500)
	v.SetDefault("heater.max_retries", 10)
	v.SetDefault("heater.identify_attempts", 3)
	v.SetDefault("heater.identify_delay_millis", 1000)
	v.SetDefault("heater.default_target_temperature", 50)
	v.SetDefault("inverter.unit_id", 1)
	v.SetDefault("inverter.rated_power", 6000)
	v.SetDefault("inverter.read_attempts", 3)
	v.SetDefault("inverter.read_delay_millis", 4)
	v.SetDefault("inverter.identify_attempts", 6)
	v.SetDefault("control.interval_millis", 1000)
	v.SetDefault("control.surplus_source", SURPLUS_SOURCE_INVERTER)
	v.SetDefault("control.grid_meter_topic", "")
	v.SetDefault("control.grid_meter_max_age_millis", 10000)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.base_topic", "pvboiler")
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("settings_file", "settings.yaml")
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
}

// Load reads defaults, PVBOILER_* environment variables and the optional yaml
// file named by CONFIG_FILE, then validates the result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			if err = v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace":
		return zap.DebugLevel
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}
