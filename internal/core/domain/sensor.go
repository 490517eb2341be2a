package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE                = "bridge"
	SENSOR_ID_HEATER_CONNECTED            = "heater_connected"
	SENSOR_ID_HEATER_TEMPERATURE          = "heater_temperature"
	SENSOR_ID_HEATER_POWER                = "heater_power"
	SENSOR_ID_HEATER_COMMANDED_POWER      = "heater_commanded_power"
	SENSOR_ID_HEATER_RELAY_500W           = "heater_relay_500w"
	SENSOR_ID_HEATER_RELAY_1000W          = "heater_relay_1000w"
	SENSOR_ID_HEATER_RELAY_2000W          = "heater_relay_2000w"
	SENSOR_ID_HEATER_OPERATION_MODE       = "heater_operation_mode"
	SENSOR_ID_HEATER_HEARTBEAT            = "heater_heartbeat"
	SENSOR_ID_HEATER_FAULT_COUNT          = "heater_fault_count"
	SENSOR_ID_SURPLUS_POWER               = "surplus_power"
	SENSOR_ID_INVERTER_AC_POWER           = "inverter_ac_power"
	SENSOR_ID_INVERTER_ENERGY_TODAY       = "inverter_energy_today"
	SENSOR_ID_INVERTER_ENERGY_TOTAL       = "inverter_energy_total"
	SENSOR_ID_INVERTER_TOTAL_CURRENT      = "inverter_total_current"
	SENSOR_ID_INVERTER_STATUS             = "inverter_status"
	SENSOR_ID_INVERTER_FAILED_REGISTERS   = "inverter_failed_registers"
	SENSOR_ID_CONTROL_TICK_DURATION       = "control_tick_duration"
	INPUT_NUMBER_ID_TARGET_TEMPERATURE    = "target_temperature"
	INPUT_NUMBER_ID_INVERTER_POWER_LIMIT  = "inverter_power_limit"
	STATE_CLASS_MEASUREMENT               = "measurement"
	STATE_CLASS_TOTAL_INCREASING          = "total_increasing"
	DEVICE_CLASS_CURRENT                  = "current"
	DEVICE_CLASS_ENERGY                   = "energy"
	DEVICE_CLASS_POWER                    = "power"
	DEVICE_CLASS_TEMPERATURE              = "temperature"
	DEVICE_CLASS_VOLTAGE                  = "voltage"
	DEVICE_CLASS_CONNECTIVITY             = "connectivity"
	DEVICE_CLASS_DURATION                 = "duration"
	ENTITY_CLASS_DIAGNOSTIC               = "diagnostic"
	ENTITY_CLASS_CONFIG                   = "config"
	SENSOR_TYPE_SENSOR                    = "sensor"
	SENSOR_TYPE_BINARY                    = "binary_sensor"
	INPUT_NUMBER_MODE_BOX                 = "box"
	INPUT_NUMBER_MODE_SLIDER              = "slider"
)

// phase sensor ids are inverter_phase<n>_<voltage|current|power>
func PhaseSensorId(phase int, quantity string) string {
	return fmt.Sprintf("inverter_phase%d_%s", phase+1, quantity)
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("pvboiler_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "transistorgit",
		Model:        "PV Boiler",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("PV Boiler %s", md5HashShort(baseTopic)),
	}
}

func HeaterDevice(info *HeaterInfo) Device {
	return Device{
		Id:           fmt.Sprintf("pvb_heater_%d", info.UnitId),
		Version:      info.DeviceType,
		Manufacturer: "transistorgit",
		Model:        "Relay board",
		Name:         fmt.Sprintf("PV Boiler heater %d", info.UnitId),
	}
}

func InverterDevice(info *InverterInfo) Device {
	return Device{
		Id:           fmt.Sprintf("pvb_inverter_%s", md5HashShort(info.Serial)),
		Version:      fmt.Sprintf("DSP %s / LCD %s", info.DSPVersion, info.LCDVersion),
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s %s", info.Manufacturer, info.Model, md5HashShort(info.Serial)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(bridgeDevice),
		Id:                SENSOR_ID_CONTROL_TICK_DURATION,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Control tick duration",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_DURATION,
		UnitOfMeasurement: "ms",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(bridgeDevice.Id, SENSOR_ID_CONTROL_TICK_DURATION),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(bridgeDevice),
		Id:                SENSOR_ID_SURPLUS_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Surplus power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:solar-power",
		UniqueId:          uniqueId(bridgeDevice.Id, SENSOR_ID_SURPLUS_POWER),
	})

	return sensors
}

func HeaterSensors(heaterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Connection
	sensors = append(sensors, GenericSensor{
		Device:         heaterDevice,
		Id:             SENSOR_ID_HEATER_CONNECTED,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Heater connected",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(heaterDevice.Id, SENSOR_ID_HEATER_CONNECTED),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(heaterDevice),
		Id:                SENSOR_ID_HEATER_TEMPERATURE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Water temperature",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_TEMPERATURE,
		UnitOfMeasurement: "°C",
		UniqueId:          uniqueId(heaterDevice.Id, SENSOR_ID_HEATER_TEMPERATURE),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(heaterDevice),
		Id:                SENSOR_ID_HEATER_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Heater power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:water-boiler",
		UniqueId:          uniqueId(heaterDevice.Id, SENSOR_ID_HEATER_POWER),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(heaterDevice),
		Id:                SENSOR_ID_HEATER_COMMANDED_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Heater commanded power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(heaterDevice.Id, SENSOR_ID_HEATER_COMMANDED_POWER),
	})

	// Relays
	for _, r := range []struct{ id, name string }{
		{SENSOR_ID_HEATER_RELAY_500W, "Relay 500 W"},
		{SENSOR_ID_HEATER_RELAY_1000W, "Relay 1000 W"},
		{SENSOR_ID_HEATER_RELAY_2000W, "Relay 2000 W"},
	} {
		sensors = append(sensors, GenericSensor{
			Device:     IdDevice(heaterDevice),
			Id:         r.id,
			SensorType: SENSOR_TYPE_BINARY,
			Name:       r.name,
			Icon:       "mdi:electric-switch",
			UniqueId:   uniqueId(heaterDevice.Id, r.id),
		})
	}

	sensors = append(sensors, GenericSensor{
		Device:     IdDevice(heaterDevice),
		Id:         SENSOR_ID_HEATER_OPERATION_MODE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Heater operation mode",
		UniqueId:   uniqueId(heaterDevice.Id, SENSOR_ID_HEATER_OPERATION_MODE),
	})

	sensors = append(sensors, GenericSensor{
		Device:           IdDevice(heaterDevice),
		Id:               SENSOR_ID_HEATER_HEARTBEAT,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Heater heartbeat",
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(heaterDevice.Id, SENSOR_ID_HEATER_HEARTBEAT),
	})

	sensors = append(sensors, GenericSensor{
		Device:         IdDevice(heaterDevice),
		Id:             SENSOR_ID_HEATER_FAULT_COUNT,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Heater fault count",
		StateClass:     STATE_CLASS_MEASUREMENT,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(heaterDevice.Id, SENSOR_ID_HEATER_FAULT_COUNT),
	})

	return sensors
}

func InverterSensors(inverterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SENSOR_ID_INVERTER_AC_POWER,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Inverter AC power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:solar-power",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_INVERTER_AC_POWER),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(inverterDevice),
		Id:                SENSOR_ID_INVERTER_ENERGY_TODAY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy today",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_INVERTER_ENERGY_TODAY),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(inverterDevice),
		Id:                SENSOR_ID_INVERTER_ENERGY_TOTAL,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy total",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_INVERTER_ENERGY_TOTAL),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(inverterDevice),
		Id:                SENSOR_ID_INVERTER_TOTAL_CURRENT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Total current",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_CURRENT,
		UnitOfMeasurement: "A",
		UniqueId:          uniqueId(inverterDevice.Id, SENSOR_ID_INVERTER_TOTAL_CURRENT),
	})

	for phase := 0; phase < 3; phase++ {
		for _, q := range []struct{ quantity, deviceClass, unit string }{
			{"voltage", DEVICE_CLASS_VOLTAGE, "V"},
			{"current", DEVICE_CLASS_CURRENT, "A"},
			{"power", DEVICE_CLASS_POWER, "W"},
		} {
			id := PhaseSensorId(phase, q.quantity)
			sensors = append(sensors, GenericSensor{
				Device:            IdDevice(inverterDevice),
				Id:                id,
				SensorType:        SENSOR_TYPE_SENSOR,
				Name:              fmt.Sprintf("Phase %d %s", phase+1, q.quantity),
				StateClass:        STATE_CLASS_MEASUREMENT,
				DeviceClass:       q.deviceClass,
				UnitOfMeasurement: q.unit,
				EnabledByDefault:  optionalBool(false),
				UniqueId:          uniqueId(inverterDevice.Id, id),
			})
		}
	}

	sensors = append(sensors, GenericSensor{
		Device:         IdDevice(inverterDevice),
		Id:             SENSOR_ID_INVERTER_STATUS,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Inverter status",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(inverterDevice.Id, SENSOR_ID_INVERTER_STATUS),
	})

	sensors = append(sensors, GenericSensor{
		Device:           IdDevice(inverterDevice),
		Id:               SENSOR_ID_INVERTER_FAILED_REGISTERS,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Failed register reads",
		StateClass:       STATE_CLASS_MEASUREMENT,
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(inverterDevice.Id, SENSOR_ID_INVERTER_FAILED_REGISTERS),
	})

	return sensors
}

func HeaterInputNumbers(heaterDevice Device, targetTemperature float64) []GenericInputNumber {

	var inputNumbers []GenericInputNumber

	// Target temperature
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:            heaterDevice,
		Id:                INPUT_NUMBER_ID_TARGET_TEMPERATURE,
		Name:              "Target temperature",
		UniqueId:          uniqueId(heaterDevice.Id, INPUT_NUMBER_ID_TARGET_TEMPERATURE),
		Icon:              "mdi:thermometer-water",
		UnitOfMeasurement: "°C",
		Max:               HEATER_MAX_TARGET_TEMP,
		Min:               HEATER_MIN_TARGET_TEMP,
		Step:              1,
		Mode:              INPUT_NUMBER_MODE_SLIDER,
		InitialValue:      targetTemperature,
	})

	return inputNumbers
}

func InverterInputNumbers(inverterDevice Device, ratedPower uint) []GenericInputNumber {

	var inputNumbers []GenericInputNumber

	// Export power limit, 0 disables limiting
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:            inverterDevice,
		Id:                INPUT_NUMBER_ID_INVERTER_POWER_LIMIT,
		Name:              "Inverter power limit",
		UniqueId:          uniqueId(inverterDevice.Id, INPUT_NUMBER_ID_INVERTER_POWER_LIMIT),
		Icon:              "mdi:transmission-tower-export",
		UnitOfMeasurement: "W",
		Max:               float64(ratedPower),
		Min:               0,
		Step:              100,
		Mode:              INPUT_NUMBER_MODE_BOX,
		InitialValue:      0,
	})

	return inputNumbers
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
