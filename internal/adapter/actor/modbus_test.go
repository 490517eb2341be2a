package actor

import (
	"testing"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/port"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/service"
	"github.com/transistorgit/pvboiler2mqtt/internal/util"
	"github.com/transistorgit/pvboiler2mqtt/internal/util/actorutil"
	"github.com/transistorgit/pvboiler2mqtt/pkg/boiler_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestModbusActor(t *testing.T, grid *service.GridMeterSource, opts ...ModbusActorOption) (*actor.ActorSystem, *actor.PID, *util.TestDevices) {
	t.Helper()
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	devices, err := util.NewTestDevices(cfg, logger)
	require.NoError(t, err)
	var source port.TelemetrySource
	if grid != nil {
		source = grid
	}
	loop := service.NewControlLoop(devices.Heater, devices.Inverter, source, nil)

	as := actorutil.NewActorSystemWithZapLogger(logger)
	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(loop, grid, logger, opts...) })
	pid := as.Root.Spawn(props)
	return as, pid, devices
}

func TestModbusActorControlTick(t *testing.T) {
	as, pid, devices := spawnTestModbusActor(t, nil)
	defer as.Shutdown()

	result, err := as.Root.RequestFuture(pid, domain.ControlTickRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ControlTickResponse)
	require.True(t, ok)
	require.False(t, resp.HasResponseError())
	require.NotNil(t, resp.Result)

	assert.Equal(t, 2650.0, resp.Result.Surplus)
	assert.Equal(t, domain.RelayBits{true, false, true}, resp.Result.Heater.CommandedBits)
	require.NotNil(t, resp.Result.Heater.CurrentTemperature)
	assert.Equal(t, 20.0, *resp.Result.Heater.CurrentTemperature)
	assert.Len(t, devices.HeaterPort.WritesOf(boiler_modbus.OP_WRITE_BITS), 1)

	as.Root.Stop(pid)
}

func TestModbusActorSetTargetTemperature(t *testing.T) {
	as, pid, devices := spawnTestModbusActor(t, nil)
	defer as.Shutdown()

	result, err := as.Root.RequestFuture(pid, domain.SetTargetTemperatureRequest{TargetTemperature: 15}, 2*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.SetTargetTemperatureResponse)
	assert.Equal(t, 15.0, resp.TargetTemperature)

	// 20 °C water is above the new target, the interlock keeps the relays off
	result, err = as.Root.RequestFuture(pid, domain.ControlTickRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	tick := result.(domain.ControlTickResponse)
	require.NotNil(t, tick.Result)
	assert.Equal(t, domain.RelayOff, tick.Result.Heater.CommandedBits)
	assert.Equal(t, 15.0, devices.Heater.TargetTemperature())
}

func TestModbusActorGetDevicesInfo(t *testing.T) {
	as, pid, _ := spawnTestModbusActor(t, nil)
	defer as.Shutdown()

	result, err := as.Root.RequestFuture(pid, domain.GetDevicesInfoRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.GetDevicesInfoResponse)
	require.NotNil(t, resp.Heater)
	require.NotNil(t, resp.Inverter)
	assert.Equal(t, "E5E1", resp.Heater.DeviceType)
	assert.Equal(t, uint8(33), resp.Heater.UnitId)
	assert.Equal(t, "1031040235170000", resp.Inverter.Serial)
	assert.Equal(t, "Solis", resp.Inverter.Manufacturer)
}

func TestModbusActorSetInverterPowerLimit(t *testing.T) {
	as, pid, devices := spawnTestModbusActor(t, nil)
	defer as.Shutdown()

	result, err := as.Root.RequestFuture(pid, domain.SetInverterPowerLimitRequest{LimitWatt: 3000}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.SetInverterPowerLimitResponse)
	require.False(t, resp.HasResponseError())
	assert.Equal(t, uint(3000), resp.LimitWatt)
	assert.Equal(t, uint16(300), devices.InverterPort.Holding(service.INVERTER_POWER_LIMIT_VALUE_REG))
}

func TestModbusActorRejectsPowerLimitAboveRated(t *testing.T) {
	as, pid, devices := spawnTestModbusActor(t, nil)
	defer as.Shutdown()

	result, err := as.Root.RequestFuture(pid, domain.SetInverterPowerLimitRequest{LimitWatt: 6001}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.SetInverterPowerLimitResponse)
	require.True(t, resp.HasResponseError())
	assert.ErrorIs(t, resp.GetResponseError(), domain.ErrPowerLimitOutOfRange)
	assert.Empty(t, devices.InverterPort.WritesOf(boiler_modbus.OP_WRITE_U16))
}

func TestModbusActorGridMeterReading(t *testing.T) {
	grid := service.NewGridMeterSource(time.Minute, nil)
	as, pid, _ := spawnTestModbusActor(t, grid)
	defer as.Shutdown()

	as.Root.Send(pid, domain.GridMeterReading{PowerWatt: -1100, At: time.Now()})

	result, err := as.Root.RequestFuture(pid, domain.ControlTickRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	tick := result.(domain.ControlTickResponse)
	require.NotNil(t, tick.Result)
	assert.Equal(t, 1100.0, tick.Result.Surplus)
	assert.Equal(t, domain.RelayBits{false, true, false}, tick.Result.Heater.CommandedBits)
}

func TestModbusActorFatalFault(t *testing.T) {
	as, pid, devices := spawnTestModbusActor(t, nil)
	defer as.Shutdown()

	devices.HeaterPort.FailAll(modbus.ErrRequestTimedOut)

	var tick domain.ControlTickResponse
	for i := 0; i < 10; i++ {
		result, err := as.Root.RequestFuture(pid, domain.ControlTickRequest{}, 5*time.Second).Result()
		require.NoError(t, err)
		tick = result.(domain.ControlTickResponse)
	}
	require.True(t, tick.HasResponseError())
	assert.True(t, domain.IsFatalFault(tick.GetResponseError()))

	result, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health := result.(domain.ActorHealthResponse)
	assert.False(t, health.Healthy)
	assert.Equal(t, ACTOR_STATE_FAULTED, health.State)
}

func TestModbusActorHoldsMessagesUntilTimedOutTickReturns(t *testing.T) {
	as, pid, devices := spawnTestModbusActor(t, nil, WithTickTaskTimeout(100*time.Millisecond))
	defer as.Shutdown()

	// 15 frames at 40 ms outlive the task timeout
	devices.HeaterPort.SetLatency(40 * time.Millisecond)
	devices.InverterPort.SetLatency(40 * time.Millisecond)

	result, err := as.Root.RequestFuture(pid, domain.ControlTickRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	tick := result.(domain.ControlTickResponse)
	assert.True(t, tick.HasResponseError())
	assert.Empty(t, devices.HeaterPort.WritesOf(boiler_modbus.OP_WRITE_BITS), "tick still running")

	result, err = as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health := result.(domain.ActorHealthResponse)
	assert.False(t, health.Healthy)
	assert.Equal(t, ACTOR_STATE_STALLED, health.State)

	// the setter waits for the running tick
	result, err = as.Root.RequestFuture(pid, domain.SetTargetTemperatureRequest{TargetTemperature: 40}, 3*time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, 40.0, result.(domain.SetTargetTemperatureResponse).TargetTemperature)
	assert.Len(t, devices.HeaterPort.WritesOf(boiler_modbus.OP_WRITE_BITS), 1)

	result, err = as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health = result.(domain.ActorHealthResponse)
	assert.True(t, health.Healthy)
	assert.Equal(t, ACTOR_STATE_IDLE, health.State)
}
