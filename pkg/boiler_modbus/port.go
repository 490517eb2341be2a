package boiler_modbus

import (
	"github.com/simonvetter/modbus"
)

// UnitPort is the register port of one device on a shared Bus. Reads go to
// the input register table, writes to holding registers and coils.
type UnitPort struct {
	bus    *Bus
	unitId uint8
}

func (p *UnitPort) ReadU16(addr uint16) (uint16, error) {
	v, err := p.bus.readRegister(p.unitId, addr, modbus.INPUT_REGISTER)
	if err != nil {
		return 0, classify("ReadU16", p.unitId, addr, err)
	}
	return v, nil
}

func (p *UnitPort) ReadU32(addr uint16) (uint32, error) {
	v, err := p.bus.readUint32(p.unitId, addr, modbus.INPUT_REGISTER)
	if err != nil {
		return 0, classify("ReadU32", p.unitId, addr, err)
	}
	return v, nil
}

// ReadHoldingU16 reads back a holding register (function code 3).
func (p *UnitPort) ReadHoldingU16(addr uint16) (uint16, error) {
	v, err := p.bus.readRegister(p.unitId, addr, modbus.HOLDING_REGISTER)
	if err != nil {
		return 0, classify("ReadHoldingU16", p.unitId, addr, err)
	}
	return v, nil
}

// WriteU16 uses function code 16 with a single register, which is what the
// heater firmware accepts for its heartbeat.
func (p *UnitPort) WriteU16(addr uint16, value uint16) error {
	if err := p.bus.writeRegisters(p.unitId, addr, []uint16{value}); err != nil {
		return classify("WriteU16", p.unitId, addr, err)
	}
	return nil
}

// WriteBits writes all coils in one frame: the device either applies the whole
// pattern or keeps the previous one.
func (p *UnitPort) WriteBits(addr uint16, bits []bool) error {
	if err := p.bus.writeCoils(p.unitId, addr, bits); err != nil {
		return classify("WriteBits", p.unitId, addr, err)
	}
	return nil
}
