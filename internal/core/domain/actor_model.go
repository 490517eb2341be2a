package domain

import "time"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_CONTROL      = "control"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetDevicesInfoRequest struct {
	ActorRequestMixIn
}

type GetDevicesInfoResponse struct {
	ActorResponseMixIn
	Heater   *HeaterInfo
	Inverter *InverterInfo
}

type ControlTickRequest struct {
	ActorRequestMixIn
}

// ControlTickResponse carries the tick outcome. ResponseError is a *FatalFault
// when the heater gave up, any other error means the tick itself failed.
type ControlTickResponse struct {
	ActorResponseMixIn
	Result *ControlTickResult
}

type GetControlStateRequest struct {
	ActorRequestMixIn
}

type GetControlStateResponse struct {
	ActorResponseMixIn
	Last      *ControlTickResult
	Ticks     uint64
	Overruns  uint64
	Faulted   bool
	UpdatedAt time.Time
}

type GridMeterReading struct {
	PowerWatt float64
	At        time.Time
}

// FatalFaultEvent is sent to the master once the heater controller gave up.
type FatalFaultEvent struct {
	Error error
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
