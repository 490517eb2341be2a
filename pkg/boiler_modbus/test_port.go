package boiler_modbus

import (
	"sync"
	"time"
)

const (
	OP_READ_U16   = "ReadU16"
	OP_READ_U32   = "ReadU32"
	OP_READ_HOLD  = "ReadHoldingU16"
	OP_WRITE_U16  = "WriteU16"
	OP_WRITE_BITS = "WriteBits"
)

type TestWrite struct {
	Op    string
	Addr  uint16
	Value uint16
	Bits  []bool
}

type testFaultKey struct {
	op   string
	addr uint16
}

// TestRegisterPort is an in-memory register port with programmable input
// registers and fault injection. Errors are returned as *TransportError like
// the real UnitPort does.
type TestRegisterPort struct {
	mu      sync.Mutex
	unitId  uint8
	input   map[uint16]uint16
	holding map[uint16]uint16
	coils   map[uint16]bool
	faults  map[testFaultKey][]error
	failAll error
	writes  []TestWrite
	ops     int
	latency time.Duration
}

func NewTestRegisterPort(unitId uint8) *TestRegisterPort {
	return &TestRegisterPort{
		unitId:  unitId,
		input:   map[uint16]uint16{},
		holding: map[uint16]uint16{},
		coils:   map[uint16]bool{},
		faults:  map[testFaultKey][]error{},
	}
}

func (p *TestRegisterPort) SetInput(addr uint16, value uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input[addr] = value
}

// SetInputU32 stores value high word first.
func (p *TestRegisterPort) SetInputU32(addr uint16, value uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input[addr] = uint16(value >> 16)
	p.input[addr+1] = uint16(value)
}

// FailNext queues err for the next op on addr. Queued errors are consumed in
// order, one per call.
func (p *TestRegisterPort) FailNext(op string, addr uint16, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := testFaultKey{op: op, addr: addr}
	p.faults[k] = append(p.faults[k], err)
}

// FailAll makes every operation fail with err until Heal is called.
func (p *TestRegisterPort) FailAll(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAll = err
}

// SetLatency delays every operation by d, holding the port like a busy line.
func (p *TestRegisterPort) SetLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = d
}

func (p *TestRegisterPort) Heal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAll = nil
	p.faults = map[testFaultKey][]error{}
}

func (p *TestRegisterPort) Writes() []TestWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TestWrite(nil), p.writes...)
}

func (p *TestRegisterPort) WritesOf(op string) []TestWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	var res []TestWrite
	for _, w := range p.writes {
		if w.Op == op {
			res = append(res, w)
		}
	}
	return res
}

func (p *TestRegisterPort) Holding(addr uint16) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holding[addr]
}

func (p *TestRegisterPort) Coils(addr uint16, count int) []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]bool, count)
	for i := range res {
		res[i] = p.coils[addr+uint16(i)]
	}
	return res
}

// Ops counts every call, failed or not.
func (p *TestRegisterPort) Ops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ops
}

func (p *TestRegisterPort) ResetLog() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = nil
	p.ops = 0
}

// fault must be called with mu held.
func (p *TestRegisterPort) fault(op string, addr uint16) error {
	p.ops++
	if p.latency > 0 {
		time.Sleep(p.latency)
	}
	if p.failAll != nil {
		return classify(op, p.unitId, addr, p.failAll)
	}
	k := testFaultKey{op: op, addr: addr}
	if q := p.faults[k]; len(q) > 0 {
		err := q[0]
		p.faults[k] = q[1:]
		return classify(op, p.unitId, addr, err)
	}
	return nil
}

func (p *TestRegisterPort) ReadU16(addr uint16) (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fault(OP_READ_U16, addr); err != nil {
		return 0, err
	}
	return p.input[addr], nil
}

func (p *TestRegisterPort) ReadU32(addr uint16) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fault(OP_READ_U32, addr); err != nil {
		return 0, err
	}
	return uint32(p.input[addr])<<16 | uint32(p.input[addr+1]), nil
}

func (p *TestRegisterPort) SetHolding(addr uint16, value uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holding[addr] = value
}

func (p *TestRegisterPort) ReadHoldingU16(addr uint16) (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fault(OP_READ_HOLD, addr); err != nil {
		return 0, err
	}
	return p.holding[addr], nil
}

func (p *TestRegisterPort) WriteU16(addr uint16, value uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fault(OP_WRITE_U16, addr); err != nil {
		return err
	}
	p.holding[addr] = value
	p.writes = append(p.writes, TestWrite{Op: OP_WRITE_U16, Addr: addr, Value: value})
	return nil
}

func (p *TestRegisterPort) WriteBits(addr uint16, bits []bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fault(OP_WRITE_BITS, addr); err != nil {
		return err
	}
	for i, b := range bits {
		p.coils[addr+uint16(i)] = b
	}
	p.writes = append(p.writes, TestWrite{Op: OP_WRITE_BITS, Addr: addr, Bits: append([]bool(nil), bits...)})
	return nil
}
