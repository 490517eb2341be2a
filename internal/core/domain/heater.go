package domain

import (
	"strings"
	"time"
)

const (
	HEATER_DEVICE_TYPE         uint16  = 0xE5E1
	HEATER_MAX_TARGET_TEMP     float64 = 80
	HEATER_MIN_TARGET_TEMP     float64 = 0
	HEATER_DEFAULT_TARGET_TEMP float64 = 50
	HEATER_HEARTBEAT_MODULO    uint8   = 100
)

// RelayBits selects the 500 W, 1000 W and 2000 W elements, in that order.
type RelayBits [3]bool

var RelayOff = RelayBits{}

var relayWatts = [3]int{500, 1000, 2000}

func (b RelayBits) Slice() []bool {
	return []bool{b[0], b[1], b[2]}
}

func (b RelayBits) Watts() int {
	w := 0
	for i, on := range b {
		if on {
			w += relayWatts[i]
		}
	}
	return w
}

func (b RelayBits) String() string {
	var sb strings.Builder
	for _, on := range b {
		if on {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// HeaterRegisters is the register map of the relay board. The three relay
// coils are consecutive starting at RelayCoils.
type HeaterRegisters struct {
	RelayCoils    uint16
	Heartbeat     uint16
	Temperature   Register
	Power         Register
	DeviceType    Register
	OperationMode Register
}

func DefaultHeaterRegisters() HeaterRegisters {
	return HeaterRegisters{
		RelayCoils:    0,
		Heartbeat:     0,
		Temperature:   U16Register("temperature", 0, 0.01, "°C"),
		Power:         U16Register("power", 2, 1, "W"),
		DeviceType:    U16Register("device_type", 3, 1, ""),
		OperationMode: U16Register("operation_mode", 4, 1, ""),
	}
}

type HeaterOperationMode uint16

const (
	HEATER_MODE_AUTO     HeaterOperationMode = 0
	HEATER_MODE_FORCE_ON HeaterOperationMode = 1
)

func (m HeaterOperationMode) String() string {
	switch m {
	case HEATER_MODE_AUTO:
		return "auto"
	case HEATER_MODE_FORCE_ON:
		return "force_on"
	default:
		return "unknown"
	}
}

// HeaterSnapshot is a read-only copy of the controller state. Telemetry fields
// are nil until the first successful read.
type HeaterSnapshot struct {
	Connected          bool
	Heartbeat          uint8
	CommandedBits      RelayBits
	LastSurplus        float64
	LastSwitchTime     time.Time
	CurrentTemperature *float64
	CurrentPower       *float64
	Status             *HeaterOperationMode
	FaultCount         uint
	TargetTemperature  float64
}

// ControlTickResult is the outcome of one control loop tick.
type ControlTickResult struct {
	Surplus        float64
	Heater         HeaterSnapshot
	Inverter       *InverterReading
	InverterStatus uint16
	Started        time.Time
	Elapsed        time.Duration
}
