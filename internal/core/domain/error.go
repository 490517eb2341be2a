package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceNotFound       = errors.New("device not found")
	ErrPowerLimitOutOfRange = errors.New("power limit out of range")
)

// FatalFault is returned by the heater controller once the consecutive fault
// budget is exhausted. The controller keeps refusing to operate afterwards.
type FatalFault struct {
	Faults uint
	Last   error
}

func (e *FatalFault) Error() string {
	return fmt.Sprintf("device critical, exiting after %d faults: %v", e.Faults, e.Last)
}

func (e *FatalFault) Unwrap() error {
	return e.Last
}

func IsFatalFault(err error) bool {
	var ff *FatalFault
	return errors.As(err, &ff)
}
