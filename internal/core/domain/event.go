package domain

import (
	"fmt"
	"strconv"
)

// SensorUpdateEventMixIn names the entity an update belongs to. The event
// type decides the state topic: sensor, binary_sensor or number.
type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

// FloatSensorUpdateEvent is a measurement such as water temperature or
// surplus, published with a fixed number of decimals.
type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

func (e FloatSensorUpdateEvent) Formatted() string {
	return strconv.FormatFloat(e.Value, 'f', int(e.Decimals), 64)
}

// BinarySensorUpdateEvent covers relay states and the heater connection.
type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// InputNumberSensorUpdateEvent reports the value in force for a settable
// number (target temperature, power limit). It is published retained.
type InputNumberSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

func (e InputNumberSensorUpdateEvent) Formatted() string {
	return strconv.FormatFloat(e.Value, 'f', int(e.Decimals), 64)
}
