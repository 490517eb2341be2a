package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/service"
	"go.uber.org/zap/zapcore"
)

const (
	SURPLUS_SOURCE_INVERTER   = "inverter"
	SURPLUS_SOURCE_GRID_METER = "grid_meter"
)

type Config struct {
	LogLevel     zapcore.Level
	Serial       SerialConfig   `mapstructure:"serial"`
	Heater       HeaterConfig   `mapstructure:"heater"`
	Inverter     InverterConfig `mapstructure:"inverter"`
	Control      ControlConfig  `mapstructure:"control"`
	MQTT         MQTTConfig     `mapstructure:"mqtt"`
	SettingsFile string         `mapstructure:"settings_file"`
	Port         uint           `mapstructure:"port"`
	HttpLog      bool           `mapstructure:"http_log"`
}

type SerialConfig struct {
	Port          string
	Baudrate      uint
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type HeaterConfig struct {
	UnitId                   uint8   `mapstructure:"unit_id"`
	DeviceType               uint16  `mapstructure:"device_type"`
	DwellTimeSeconds         uint32  `mapstructure:"dwell_time_seconds"`
	LargeStepWatts           float64 `mapstructure:"large_step_watts"`
	MaxRetries               uint    `mapstructure:"max_retries"`
	IdentifyAttempts         int     `mapstructure:"identify_attempts"`
	IdentifyDelayMillis      uint32  `mapstructure:"identify_delay_millis"`
	DefaultTargetTemperature float64 `mapstructure:"default_target_temperature"`
}

type InverterConfig struct {
	UnitId           uint8  `mapstructure:"unit_id"`
	RatedPower       uint   `mapstructure:"rated_power"`
	ReadAttempts     int    `mapstructure:"read_attempts"`
	ReadDelayMillis  uint32 `mapstructure:"read_delay_millis"`
	IdentifyAttempts int    `mapstructure:"identify_attempts"`
}

type ControlConfig struct {
	IntervalMillis        uint32 `mapstructure:"interval_millis"`
	SurplusSource         string `mapstructure:"surplus_source"`
	GridMeterTopic        string `mapstructure:"grid_meter_topic"`
	GridMeterMaxAgeMillis uint32 `mapstructure:"grid_meter_max_age_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate checks bounds and normalizes topics in place.
func (cfg *Config) Validate() error {
	if cfg.Serial.Port == "" {
		return ErrNoSerialPort
	}
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if cfg.Control.IntervalMillis < 200 {
		return errors.New("config param control.interval_millis should be >= 200ms")
	}
	if cfg.Heater.DwellTimeSeconds == 0 {
		return errors.New("config param heater.dwell_time_seconds should be > 0")
	}
	if cfg.Heater.MaxRetries < 1 {
		return errors.New("config param heater.max_retries should be >= 1")
	}
	if cfg.Heater.IdentifyAttempts < 1 || cfg.Inverter.IdentifyAttempts < 1 || cfg.Inverter.ReadAttempts < 1 {
		return errors.New("config params heater.identify_attempts, inverter.identify_attempts and inverter.read_attempts should be >= 1")
	}
	if cfg.Heater.DefaultTargetTemperature < domain.HEATER_MIN_TARGET_TEMP || cfg.Heater.DefaultTargetTemperature > domain.HEATER_MAX_TARGET_TEMP {
		return fmt.Errorf("config param heater.default_target_temperature should be in [%.0f, %.0f]", domain.HEATER_MIN_TARGET_TEMP, domain.HEATER_MAX_TARGET_TEMP)
	}
	switch cfg.Control.SurplusSource {
	case SURPLUS_SOURCE_INVERTER:
	case SURPLUS_SOURCE_GRID_METER:
		if cfg.Control.GridMeterTopic == "" {
			return errors.New("config param control.grid_meter_topic is required when control.surplus_source is grid_meter")
		}
	default:
		return fmt.Errorf("config param control.surplus_source must be %q or %q", SURPLUS_SOURCE_INVERTER, SURPLUS_SOURCE_GRID_METER)
	}
	return nil
}

var ErrNoSerialPort = errors.New("config param serial.port is required")

func (cfg *Config) ControlInterval() time.Duration {
	return time.Duration(cfg.Control.IntervalMillis) * time.Millisecond
}

func (cfg *Config) GridMeterMaxAge() time.Duration {
	return time.Duration(cfg.Control.GridMeterMaxAgeMillis) * time.Millisecond
}

func (cfg *Config) SerialTimeout() time.Duration {
	return time.Duration(cfg.Serial.TimeoutMillis) * time.Millisecond
}

func (cfg *Config) HeaterControlConfig() service.HeaterControlConfig {
	c := service.DefaultHeaterControlConfig()
	c.UnitId = cfg.Heater.UnitId
	c.DeviceType = cfg.Heater.DeviceType
	c.Dwell = time.Duration(cfg.Heater.DwellTimeSeconds) * time.Second
	c.LargeStepWatts = cfg.Heater.LargeStepWatts
	c.MaxRetries = cfg.Heater.MaxRetries
	c.IdentifyAttempts = cfg.Heater.IdentifyAttempts
	c.IdentifyDelay = time.Duration(cfg.Heater.IdentifyDelayMillis) * time.Millisecond
	c.TargetTemperature = cfg.Heater.DefaultTargetTemperature
	return c
}

func (cfg *Config) InverterTelemetryConfig() service.InverterTelemetryConfig {
	c := service.DefaultInverterTelemetryConfig()
	c.RatedPower = cfg.Inverter.RatedPower
	c.ReadAttempts = cfg.Inverter.ReadAttempts
	c.RegisterDelay = time.Duration(cfg.Inverter.ReadDelayMillis) * time.Millisecond
	c.IdentifyAttempts = cfg.Inverter.IdentifyAttempts
	return c
}
