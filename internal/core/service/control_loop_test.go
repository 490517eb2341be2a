package service

import (
	"context"
	"testing"
	"time"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
)

func TestControlLoopUsesInverterProduction(t *testing.T) {
	heater, hp, _ := newTestHeater(t)
	inv, _, _ := newTestInverter()
	loop := NewControlLoop(heater, inv, nil, nil)

	res, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2650.0, res.Surplus)
	require.NotNil(t, res.Inverter)
	assert.Equal(t, uint16(3), res.InverterStatus)
	assert.Equal(t, domain.RelayBits{true, false, true}, res.Heater.CommandedBits)
	assert.Equal(t, domain.RelayBits{true, false, true}, lastBits(t, hp))
}

func TestControlLoopGridMeterSource(t *testing.T) {
	heater, hp, clock := newTestHeater(t)
	inv, _, _ := newTestInverter()
	grid := NewGridMeterSource(5*time.Second, clock.Now)
	grid.Update(-1100, clock.Now())
	loop := NewControlLoop(heater, inv, grid, clock.Now)

	res, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1100.0, res.Surplus)
	// inverter telemetry is still read for publishing
	require.NotNil(t, res.Inverter)
	assert.Equal(t, 2650.0, res.Inverter.ActivePowerWatt)
	assert.Equal(t, domain.RelayBits{false, true, false}, lastBits(t, hp))
}

func TestControlLoopSurfacesFatalFault(t *testing.T) {
	heater, hp, _ := newTestHeater(t)
	grid := NewGridMeterSource(time.Minute, nil)
	loop := NewControlLoop(heater, nil, grid, nil)
	hp.FailAll(modbus.ErrRequestTimedOut)

	var err error
	for i := 0; i < 10; i++ {
		_, err = loop.Tick(context.Background())
	}
	require.Error(t, err)
	assert.True(t, domain.IsFatalFault(err))
}

func TestControlLoopCancelled(t *testing.T) {
	heater, _, _ := newTestHeater(t)
	inv, _, _ := newTestInverter()
	inv.sleep = SleepContext
	loop := NewControlLoop(heater, inv, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loop.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
