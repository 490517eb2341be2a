package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/pkg/boiler_modbus"
	"go.uber.org/zap"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Set(offset time.Duration, start time.Time) {
	c.t = start.Add(offset)
}

var testStart = time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)

func newTestHeater(t *testing.T) (*HeaterController, *boiler_modbus.TestRegisterPort, *fakeClock) {
	t.Helper()
	p := boiler_modbus.NewTestRegisterPort(1)
	regs := domain.DefaultHeaterRegisters()
	p.SetInput(regs.DeviceType.Address, domain.HEATER_DEVICE_TYPE)
	p.SetInput(regs.Temperature.Address, 2000) // 20.00 °C
	p.SetInput(regs.Power.Address, 1500)
	p.SetInput(regs.OperationMode.Address, 0)

	clock := &fakeClock{t: testStart}
	logger, _ := zap.NewDevelopment()
	c := NewHeaterController(p, DefaultHeaterControlConfig(), logger,
		WithClock(clock.Now), WithSleeper(NoSleep))
	require.NoError(t, c.Identify(context.Background()))
	p.ResetLog()
	return c, p, clock
}

func lastBits(t *testing.T, p *boiler_modbus.TestRegisterPort) domain.RelayBits {
	t.Helper()
	writes := p.WritesOf(boiler_modbus.OP_WRITE_BITS)
	require.NotEmpty(t, writes)
	w := writes[len(writes)-1]
	require.Len(t, w.Bits, 3)
	return domain.RelayBits{w.Bits[0], w.Bits[1], w.Bits[2]}
}

func TestIdentify(t *testing.T) {
	c, _, _ := newTestHeater(t)
	assert.True(t, c.Connected())
}

func TestIdentifyRetriesThenNotFound(t *testing.T) {
	p := boiler_modbus.NewTestRegisterPort(1)
	p.FailAll(modbus.ErrRequestTimedOut)

	slept := 0
	c := NewHeaterController(p, DefaultHeaterControlConfig(), zap.NewNop(),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			assert.Equal(t, time.Second, d)
			slept++
			return nil
		}))

	err := c.Identify(context.Background())
	require.ErrorIs(t, err, domain.ErrDeviceNotFound)
	assert.Equal(t, 3, p.Ops())
	assert.Equal(t, 2, slept)
	assert.False(t, c.Connected())
}

func TestIdentifyRecoversOnSecondAttempt(t *testing.T) {
	p := boiler_modbus.NewTestRegisterPort(1)
	p.SetInput(3, domain.HEATER_DEVICE_TYPE)
	p.FailNext(boiler_modbus.OP_READ_U16, 3, modbus.ErrBadCRC)

	c := NewHeaterController(p, DefaultHeaterControlConfig(), zap.NewNop(), WithSleeper(NoSleep))
	require.NoError(t, c.Identify(context.Background()))
	assert.Equal(t, 2, p.Ops())
}

func TestIdentifyWrongType(t *testing.T) {
	p := boiler_modbus.NewTestRegisterPort(1)
	p.SetInput(3, 0x1234)

	c := NewHeaterController(p, DefaultHeaterControlConfig(), zap.NewNop(), WithSleeper(NoSleep))
	err := c.Identify(context.Background())
	require.ErrorIs(t, err, domain.ErrDeviceNotFound)
	assert.False(t, c.Connected())
}

func TestOperateDisconnectedIsNoop(t *testing.T) {
	p := boiler_modbus.NewTestRegisterPort(1)
	c := NewHeaterController(p, DefaultHeaterControlConfig(), zap.NewNop())

	require.NoError(t, c.Operate(3000))
	assert.Empty(t, p.Writes())
	assert.Equal(t, 0, p.Ops())
}

func TestEndToEndScenario(t *testing.T) {
	c, p, clock := newTestHeater(t)

	steps := []struct {
		at      time.Duration
		surplus float64
		bits    domain.RelayBits
	}{
		{0, 0, domain.RelayBits{false, false, false}},
		{1 * time.Second, 600, domain.RelayBits{false, false, false}},
		{6 * time.Second, 600, domain.RelayBits{true, false, false}},
		{7 * time.Second, 2600, domain.RelayBits{true, false, false}},
		{67 * time.Second, 2600, domain.RelayBits{true, false, true}},
		{68 * time.Second, -100, domain.RelayBits{false, false, false}},
	}
	for i, s := range steps {
		clock.Set(s.at, testStart)
		require.NoError(t, c.Operate(s.surplus))
		assert.Equal(t, s.bits, lastBits(t, p), "step %d", i)
	}

	snap := c.Snapshot()
	require.NotNil(t, snap.CurrentTemperature)
	assert.InDelta(t, 20.0, *snap.CurrentTemperature, 0.001)
	require.NotNil(t, snap.CurrentPower)
	assert.Equal(t, 1500.0, *snap.CurrentPower)
	require.NotNil(t, snap.Status)
	assert.Equal(t, domain.HEATER_MODE_AUTO, *snap.Status)
	assert.Equal(t, uint8(6), snap.Heartbeat)
	assert.Equal(t, -100.0, snap.LastSurplus)
}

func TestSmallStepWaitsSettleTime(t *testing.T) {
	c, p, clock := newTestHeater(t)

	require.NoError(t, c.Operate(600))
	assert.Equal(t, domain.RelayBits{true, false, false}, lastBits(t, p))

	clock.Set(2*time.Second, testStart)
	require.NoError(t, c.Operate(1100))
	assert.Equal(t, domain.RelayBits{true, false, false}, lastBits(t, p))

	clock.Set(8*time.Second, testStart)
	require.NoError(t, c.Operate(1100))
	assert.Equal(t, domain.RelayBits{false, true, false}, lastBits(t, p))
}

func TestDownshiftIsImmediate(t *testing.T) {
	c, p, clock := newTestHeater(t)

	require.NoError(t, c.Operate(3600))
	assert.Equal(t, domain.RelayBits{true, true, true}, lastBits(t, p))

	clock.Set(100*time.Millisecond, testStart)
	require.NoError(t, c.Operate(1200))
	assert.Equal(t, domain.RelayBits{false, true, false}, lastBits(t, p))
}

func TestTemperatureInterlock(t *testing.T) {
	c, p, clock := newTestHeater(t)
	p.SetInput(0, 5000) // 50.00 °C, target is 50

	require.NoError(t, c.Operate(3600))
	assert.Equal(t, domain.RelayOff, lastBits(t, p))

	c.SetTargetTemperature(60)
	clock.Set(61*time.Second, testStart)
	require.NoError(t, c.Operate(3600))
	assert.Equal(t, domain.RelayBits{true, true, true}, lastBits(t, p))
}

func TestUnreadableTemperatureForcesOff(t *testing.T) {
	c, p, clock := newTestHeater(t)

	require.NoError(t, c.Operate(3600))
	assert.Equal(t, domain.RelayBits{true, true, true}, lastBits(t, p))

	clock.Set(time.Second, testStart)
	p.FailNext(boiler_modbus.OP_READ_U16, 0, modbus.ErrBadCRC)
	require.NoError(t, c.Operate(3600))
	assert.Equal(t, domain.RelayOff, lastBits(t, p))
	assert.Equal(t, uint(1), c.Snapshot().FaultCount)
	// last good reading is kept
	require.NotNil(t, c.Snapshot().CurrentTemperature)
	assert.InDelta(t, 20.0, *c.Snapshot().CurrentTemperature, 0.001)
}

func TestHeartbeatWraps(t *testing.T) {
	c, p, _ := newTestHeater(t)

	for i := 0; i < 100; i++ {
		require.NoError(t, c.Operate(0))
	}
	assert.Equal(t, uint8(0), c.Snapshot().Heartbeat)

	writes := p.WritesOf(boiler_modbus.OP_WRITE_U16)
	require.Len(t, writes, 100)
	for i, w := range writes {
		assert.Equal(t, uint16(i), w.Value)
		assert.Less(t, w.Value, uint16(100))
	}
}

func TestHeartbeatHoldsOnFailedWrite(t *testing.T) {
	c, p, _ := newTestHeater(t)

	require.NoError(t, c.Operate(0))
	p.FailNext(boiler_modbus.OP_WRITE_U16, 0, modbus.ErrRequestTimedOut)
	require.NoError(t, c.Operate(0))
	assert.Equal(t, uint8(1), c.Snapshot().Heartbeat)
	require.NoError(t, c.Operate(0))
	assert.Equal(t, uint8(2), c.Snapshot().Heartbeat)
}

func TestLastSurplusFollowsFaultedCycle(t *testing.T) {
	c, p, _ := newTestHeater(t)

	require.NoError(t, c.Operate(100))
	p.FailNext(boiler_modbus.OP_WRITE_U16, 0, modbus.ErrRequestTimedOut)
	require.NoError(t, c.Operate(2600))

	s := c.Snapshot()
	assert.Equal(t, 2600.0, s.LastSurplus)
	assert.Equal(t, uint(1), s.FaultCount)
}

func TestFaultAccounting(t *testing.T) {
	c, p, _ := newTestHeater(t)
	p.FailAll(modbus.ErrRequestTimedOut)

	for i := 1; i < 10; i++ {
		require.NoError(t, c.Operate(0), "fault %d", i)
		assert.Equal(t, uint(i), c.Snapshot().FaultCount)
	}

	// a single success resets the counter
	p.Heal()
	require.NoError(t, c.Operate(0))
	assert.Equal(t, uint(0), c.Snapshot().FaultCount)

	p.FailAll(modbus.ErrBadCRC)
	for i := 1; i < 10; i++ {
		require.NoError(t, c.Operate(0))
	}
	err := c.Operate(0)
	require.Error(t, err)
	var ff *domain.FatalFault
	require.True(t, errors.As(err, &ff))
	assert.Equal(t, uint(10), ff.Faults)
	assert.ErrorIs(t, err, modbus.ErrBadCRC)

	// once fatal the controller stays down without touching the bus
	p.Heal()
	ops := p.Ops()
	assert.True(t, domain.IsFatalFault(c.Operate(0)))
	assert.Equal(t, ops, p.Ops())
}

func TestFailedRelayWriteKeepsPreviousPattern(t *testing.T) {
	c, p, clock := newTestHeater(t)

	require.NoError(t, c.Operate(600))
	assert.Equal(t, []bool{true, false, false}, p.Coils(0, 3))

	clock.Set(10*time.Second, testStart)
	p.FailNext(boiler_modbus.OP_WRITE_BITS, 0, modbus.ErrShortFrame)
	require.NoError(t, c.Operate(300))
	assert.Equal(t, []bool{true, false, false}, p.Coils(0, 3))
}
