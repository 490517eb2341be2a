package boiler_modbus

import (
	"errors"
	"fmt"

	"github.com/simonvetter/modbus"
)

// ErrNoResponse matches (errors.Is) every TransportError caused by a device
// that did not answer at all.
var ErrNoResponse = errors.New("modbus: no response")

// TransportError is a failed single register operation. It is always
// transient from the bus point of view; callers decide how many to tolerate.
type TransportError struct {
	Op   string
	Unit uint8
	Addr uint16
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("modbus %s unit=%d addr=%d: %v", e.Op, e.Unit, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrNoResponse && isNoResponse(e.Err)
}

func (e *TransportError) NoResponse() bool {
	return isNoResponse(e.Err)
}

func isNoResponse(err error) bool {
	return errors.Is(err, modbus.ErrRequestTimedOut) ||
		errors.Is(err, modbus.ErrGWTargetFailedToRespond) ||
		errors.Is(err, ErrNoResponse)
}

func classify(op string, unit uint8, addr uint16, err error) error {
	return &TransportError{
		Op:   op,
		Unit: unit,
		Addr: addr,
		Err:  err,
	}
}
