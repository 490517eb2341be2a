package domain

import "fmt"

// DeviceCommandRequest

type DeviceCommandRequest interface {
	ActorRequest
	DeviceCommand() string
}

type DeviceCommandRequestMixIn struct {
	ActorRequestMixIn
}

func (r DeviceCommandRequestMixIn) DeviceCommand() string {
	return fmt.Sprintf("%T", r)
}

// DeviceCommandResponse

type DeviceCommandResponse interface {
	ActorResponse
	DeviceCommandResponse() string
}

type DeviceCommandResponseMixIn struct {
	ActorResponseMixIn
}

func (r DeviceCommandResponseMixIn) DeviceCommandResponse() string {
	return fmt.Sprintf("%T", r)
}

// Device commands

type SetTargetTemperatureRequest struct {
	DeviceCommandRequestMixIn
	TargetTemperature float64
}

type SetTargetTemperatureResponse struct {
	DeviceCommandResponseMixIn
	TargetTemperature float64
}

type SetInverterPowerLimitRequest struct {
	DeviceCommandRequestMixIn
	LimitWatt uint
}

type SetInverterPowerLimitResponse struct {
	DeviceCommandResponseMixIn
	LimitWatt uint
}

// ensure interface compliance
var (
	_ DeviceCommandRequest  = (*SetTargetTemperatureRequest)(nil)
	_ DeviceCommandRequest  = (*SetInverterPowerLimitRequest)(nil)
	_ DeviceCommandResponse = (*SetTargetTemperatureResponse)(nil)
)
