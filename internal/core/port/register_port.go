package port

import (
	"context"
)

// RegisterPort is the transport the core drives to talk to one device on the
// bus. Every operation may fail transiently; retry policy belongs to the caller.
type RegisterPort interface {
	ReadU16(addr uint16) (uint16, error)
	ReadU32(addr uint16) (uint32, error)
	WriteU16(addr uint16, value uint16) error
	WriteBits(addr uint16, bits []bool) error
}

// TelemetrySource supplies the signed PV surplus in watts once per tick.
// Positive means power free to consume.
type TelemetrySource interface {
	Refresh(ctx context.Context) error
	SurplusWatts() float64
}

// HoldingRegisterPort additionally reads back holding registers, needed for
// read-modify-write of device settings.
type HoldingRegisterPort interface {
	RegisterPort
	ReadHoldingU16(addr uint16) (uint16, error)
}
