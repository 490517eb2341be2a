package util

import (
	"context"

	"github.com/transistorgit/pvboiler2mqtt/internal/config"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/service"
	"github.com/transistorgit/pvboiler2mqtt/pkg/boiler_modbus"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Serial: config.SerialConfig{
			Port:          "/dev/null",
			Baudrate:      9600,
			TimeoutMillis: 300,
		},
		Heater: config.HeaterConfig{
			UnitId:                   33,
			DeviceType:               domain.HEATER_DEVICE_TYPE,
			DwellTimeSeconds:         60,
			LargeStepWatts:           500,
			MaxRetries:               10,
			IdentifyAttempts:         3,
			IdentifyDelayMillis:      0,
			DefaultTargetTemperature: domain.HEATER_DEFAULT_TARGET_TEMP,
		},
		Inverter: config.InverterConfig{
			UnitId:           1,
			RatedPower:       6000,
			ReadAttempts:     3,
			ReadDelayMillis:  0,
			IdentifyAttempts: 6,
		},
		Control: config.ControlConfig{
			IntervalMillis:        1000,
			SurplusSource:         config.SURPLUS_SOURCE_INVERTER,
			GridMeterMaxAgeMillis: 10000,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "pvboiler",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}

// TestDevices is a heater and an inverter on scripted register ports.
type TestDevices struct {
	HeaterPort   *boiler_modbus.TestRegisterPort
	InverterPort *boiler_modbus.TestRegisterPort
	Heater       *service.HeaterController
	Inverter     *service.InverterTelemetry
}

// serial 1031040235170000
var testInverterSerial = []uint16{0x1031, 0x0402, 0x3517, 0x0000}

// NewTestDevices returns identified devices: 20 °C water, 2650 W production.
func NewTestDevices(cfg config.Config, logger *zap.Logger) (*TestDevices, error) {
	hp := boiler_modbus.NewTestRegisterPort(cfg.Heater.UnitId)
	regs := domain.DefaultHeaterRegisters()
	hp.SetInput(regs.DeviceType.Address, cfg.Heater.DeviceType)
	hp.SetInput(regs.Temperature.Address, 2000)
	hp.SetInput(regs.Power.Address, 0)
	hp.SetInput(regs.OperationMode.Address, uint16(domain.HEATER_MODE_AUTO))

	ip := boiler_modbus.NewTestRegisterPort(cfg.Inverter.UnitId)
	for i, v := range testInverterSerial {
		ip.SetInput(domain.INVERTER_SERIAL_REG_START+uint16(i), service.SwapNibbles(v))
	}
	ip.SetInputU32(3004, 2650)
	ip.SetInput(3033, 2300)
	ip.SetInput(3036, 40)
	ip.SetInput(3043, 3)
	ip.SetHolding(service.INVERTER_POWER_LIMIT_VALUE_REG, uint16(cfg.Inverter.RatedPower/service.INVERTER_POWER_LIMIT_WATT_PER_BIT))

	heater := service.NewHeaterController(hp, cfg.HeaterControlConfig(), logger, service.WithSleeper(service.NoSleep))
	if err := heater.Identify(context.Background()); err != nil {
		return nil, err
	}
	inverter := service.NewInverterTelemetry(ip, cfg.InverterTelemetryConfig(), logger, service.NoSleep)
	if err := inverter.Identify(context.Background()); err != nil {
		return nil, err
	}
	hp.ResetLog()
	ip.ResetLog()

	return &TestDevices{
		HeaterPort:   hp,
		InverterPort: ip,
		Heater:       heater,
		Inverter:     inverter,
	}, nil
}
