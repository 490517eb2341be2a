package events

import (
	. "github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
)

func floatEvent(id string, value float64, decimals uint) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Value:    value,
		Decimals: decimals,
	}
}

func binaryEvent(id string, value bool) BinarySensorUpdateEvent {
	return BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Value: value,
	}
}

// HeaterSnapshotToUpdateEvents skips telemetry that was never read.
func HeaterSnapshotToUpdateEvents(s *HeaterSnapshot) []any {
	var events []any

	events = append(events, binaryEvent(SENSOR_ID_HEATER_CONNECTED, s.Connected))

	// Telemetry
	if s.CurrentTemperature != nil {
		events = append(events, floatEvent(SENSOR_ID_HEATER_TEMPERATURE, *s.CurrentTemperature, 2))
	}
	if s.CurrentPower != nil {
		events = append(events, floatEvent(SENSOR_ID_HEATER_POWER, *s.CurrentPower, 0))
	}
	if s.Status != nil {
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_HEATER_OPERATION_MODE,
			},
			Value: s.Status.String(),
		})
	}

	// Relays
	events = append(events, floatEvent(SENSOR_ID_HEATER_COMMANDED_POWER, float64(s.CommandedBits.Watts()), 0))
	events = append(events, binaryEvent(SENSOR_ID_HEATER_RELAY_500W, s.CommandedBits[0]))
	events = append(events, binaryEvent(SENSOR_ID_HEATER_RELAY_1000W, s.CommandedBits[1]))
	events = append(events, binaryEvent(SENSOR_ID_HEATER_RELAY_2000W, s.CommandedBits[2]))

	// Diagnostics
	events = append(events, floatEvent(SENSOR_ID_HEATER_HEARTBEAT, float64(s.Heartbeat), 0))
	events = append(events, floatEvent(SENSOR_ID_HEATER_FAULT_COUNT, float64(s.FaultCount), 0))

	return events
}

func InverterReadingToUpdateEvents(r *InverterReading, status uint16) []any {
	var events []any

	events = append(events, floatEvent(SENSOR_ID_INVERTER_AC_POWER, r.ActivePowerWatt, 0))
	events = append(events, floatEvent(SENSOR_ID_INVERTER_ENERGY_TODAY, r.EnergyTodayKWh, 1))
	events = append(events, floatEvent(SENSOR_ID_INVERTER_ENERGY_TOTAL, r.EnergyTotalKWh, 0))
	events = append(events, floatEvent(SENSOR_ID_INVERTER_TOTAL_CURRENT, r.TotalCurrent, 1))
	for i, p := range r.Phases {
		events = append(events, floatEvent(PhaseSensorId(i, "voltage"), p.Voltage, 1))
		events = append(events, floatEvent(PhaseSensorId(i, "current"), p.Current, 1))
		events = append(events, floatEvent(PhaseSensorId(i, "power"), p.Power, 0))
	}
	events = append(events, floatEvent(SENSOR_ID_INVERTER_STATUS, float64(status), 0))
	events = append(events, floatEvent(SENSOR_ID_INVERTER_FAILED_REGISTERS, float64(r.FailedRegisters), 0))

	return events
}

func ControlTickToUpdateEvents(r *ControlTickResult) []any {
	var events []any

	events = append(events, floatEvent(SENSOR_ID_SURPLUS_POWER, r.Surplus, 0))
	events = append(events, floatEvent(SENSOR_ID_CONTROL_TICK_DURATION, float64(r.Elapsed.Milliseconds()), 0))
	events = append(events, HeaterSnapshotToUpdateEvents(&r.Heater)...)
	if r.Inverter != nil {
		events = append(events, InverterReadingToUpdateEvents(r.Inverter, r.InverterStatus)...)
	}

	return events
}

func TargetTemperatureUpdateEvents(value float64) []any {
	var events []any
	events = append(events, InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: INPUT_NUMBER_ID_TARGET_TEMPERATURE,
		},
		Value: value,
	})
	return events
}

func InverterPowerLimitUpdateEvents(limitWatt uint) []any {
	var events []any
	events = append(events, InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: INPUT_NUMBER_ID_INVERTER_POWER_LIMIT,
		},
		Value: float64(limitWatt),
	})
	return events
}
