package boiler_modbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Bus is the single owner of the half-duplex RS-485 line. Every device on the
// line talks through a UnitPort obtained from the same Bus, so frames of the
// heater and the inverter never interleave.
type Bus struct {
	mu         sync.Mutex
	client     *modbus.ModbusClient
	instrument []ModbusInstrument
}

type ModbusInstrument struct {
	RecordTime func(fnName string, readTime time.Duration)
}

type BusConfig struct {
	Port     string
	Baudrate uint
	Timeout  time.Duration
}

func CreateRTUBus(cfg BusConfig, logger *zap.Logger, instrumentation *ModbusInstrument) (*Bus, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      fmt.Sprintf("rtu://%s", cfg.Port),
		Speed:    cfg.Baudrate,
		DataBits: 8,
		Parity:   modbus.PARITY_NONE,
		StopBits: 1,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if err = client.SetEncoding(modbus.BIG_ENDIAN, modbus.HIGH_WORD_FIRST); err != nil {
		return nil, err
	}

	// instrumentation
	var inst []ModbusInstrument
	inst = append(inst, traceLoggerInstrumentation(logger.With(zap.String("target", "bus"), zap.String("port", cfg.Port))))
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	return &Bus{
		client:     client,
		instrument: inst,
	}, nil
}

func (bus *Bus) Open() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.client.Open()
}

func (bus *Bus) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.client.Close()
}

// Port returns the register port of the device answering to unitId.
func (bus *Bus) Port(unitId uint8) *UnitPort {
	return &UnitPort{bus: bus, unitId: unitId}
}

// selectUnit must be called with mu held.
func (bus *Bus) selectUnit(unitId uint8) error {
	return bus.client.SetUnitId(unitId)
}

func (bus *Bus) readRegister(unitId uint8, addr uint16, regType modbus.RegType) (uint16, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	defer RecordTimer("ReadRegister", bus.instrument)()
	if err := bus.selectUnit(unitId); err != nil {
		return 0, err
	}
	return bus.client.ReadRegister(addr, regType)
}

func (bus *Bus) readUint32(unitId uint8, addr uint16, regType modbus.RegType) (uint32, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	defer RecordTimer("ReadUint32", bus.instrument)()
	if err := bus.selectUnit(unitId); err != nil {
		return 0, err
	}
	return bus.client.ReadUint32(addr, regType)
}

func (bus *Bus) writeRegisters(unitId uint8, addr uint16, values []uint16) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	defer RecordTimer("WriteRegisters", bus.instrument)()
	if err := bus.selectUnit(unitId); err != nil {
		return err
	}
	return bus.client.WriteRegisters(addr, values)
}

func (bus *Bus) writeCoils(unitId uint8, addr uint16, values []bool) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	defer RecordTimer("WriteCoils", bus.instrument)()
	if err := bus.selectUnit(unitId); err != nil {
		return err
	}
	return bus.client.WriteCoils(addr, values)
}

func RecordTimer(name string, instrument []ModbusInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func traceLoggerInstrumentation(logger *zap.Logger) ModbusInstrument {
	return ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			logger.Debug("modbus timing", zap.String("fn", fnName), zap.Int64("millis", readTime.Milliseconds()))
		},
	}
}
