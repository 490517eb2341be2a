package actor

import (
	"testing"
	"time"

	adactor "github.com/transistorgit/pvboiler2mqtt/internal/adapter/actor"
	"github.com/transistorgit/pvboiler2mqtt/internal/config"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/service"
	"github.com/transistorgit/pvboiler2mqtt/internal/mqtt"
	"github.com/transistorgit/pvboiler2mqtt/internal/settings"
	"github.com/transistorgit/pvboiler2mqtt/internal/util"
	"github.com/transistorgit/pvboiler2mqtt/internal/util/actorutil"
	"github.com/transistorgit/pvboiler2mqtt/pkg/boiler_modbus"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testMaster struct {
	as      *actor.ActorSystem
	pid     *actor.PID
	devices *util.TestDevices
	store   *settings.Store
	fatal   chan error
}

func startTestMaster(t *testing.T, cfg config.Config) *testMaster {
	t.Helper()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	devices, err := util.NewTestDevices(cfg, logger)
	require.NoError(t, err)
	loop := service.NewControlLoop(devices.Heater, devices.Inverter, nil, nil)

	tm := &testMaster{
		as:      actorutil.NewActorSystemWithZapLogger(logger),
		devices: devices,
		store:   settings.NewStore("", settings.Default()),
		fatal:   make(chan error, 1),
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.ModbusActor {
			return adactor.NewModbusActor(loop, nil, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, tm.store, func(err error) {
			tm.fatal <- err
		}, logger)
	})
	tm.pid, err = tm.as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	t.Cleanup(func() {
		tm.as.Root.Stop(tm.pid)
		tm.as.Shutdown()
	})
	return tm
}

func (tm *testMaster) controlState() domain.GetControlStateResponse {
	res, err := tm.as.Root.RequestFuture(tm.pid, domain.GetControlStateRequest{}, 2*time.Second).Result()
	if err != nil {
		return domain.GetControlStateResponse{}
	}
	resp, _ := res.(domain.GetControlStateResponse)
	return resp
}

func TestMasterActorHealth(t *testing.T) {
	tm := startTestMaster(t, util.LoadTestConfig())

	require.Eventually(t, func() bool {
		res, err := tm.as.Root.RequestFuture(tm.pid, domain.ActorHealthRequest{}, 3*time.Second).Result()
		if err != nil {
			return false
		}
		healthResp, ok := res.(domain.ActorHealthResponse)
		return ok && healthResp.Healthy
	}, 5*time.Second, 200*time.Millisecond)
}

func TestMasterActorRunsControlLoop(t *testing.T) {
	tm := startTestMaster(t, util.LoadTestConfig())

	require.Eventually(t, func() bool {
		return tm.controlState().Ticks >= 1
	}, 5*time.Second, 100*time.Millisecond)

	state := tm.controlState()
	require.NotNil(t, state.Last)
	assert.Equal(t, 2650.0, state.Last.Surplus)
	assert.Equal(t, domain.RelayBits{true, false, true}, state.Last.Heater.CommandedBits)
	assert.False(t, state.Faulted)
	assert.NotEmpty(t, tm.devices.HeaterPort.WritesOf(boiler_modbus.OP_WRITE_BITS))
}

func TestMasterActorTargetTemperatureCommand(t *testing.T) {
	tm := startTestMaster(t, util.LoadTestConfig())

	tm.as.Root.Send(tm.pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: domain.INPUT_NUMBER_ID_TARGET_TEMPERATURE,
		Command:  "number",
		Payload:  "95",
	}})

	require.Eventually(t, func() bool {
		state := tm.controlState()
		return state.Last != nil && state.Last.Heater.TargetTemperature == 80
	}, 5*time.Second, 100*time.Millisecond)
	assert.Equal(t, 80.0, tm.store.Get().TargetTemperature)
}

func TestMasterActorIgnoresInvalidCommand(t *testing.T) {
	tm := startTestMaster(t, util.LoadTestConfig())

	tm.as.Root.Send(tm.pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: domain.INPUT_NUMBER_ID_INVERTER_POWER_LIMIT,
		Command:  "number",
		Payload:  "-10",
	}})

	require.Eventually(t, func() bool {
		return tm.controlState().Ticks >= 1
	}, 5*time.Second, 100*time.Millisecond)
	assert.Empty(t, tm.devices.InverterPort.WritesOf(boiler_modbus.OP_WRITE_U16))
}

func TestMasterActorFatalFault(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.Control.IntervalMillis = 200
	cfg.Heater.MaxRetries = 3
	tm := startTestMaster(t, cfg)

	tm.devices.HeaterPort.FailAll(modbus.ErrRequestTimedOut)

	select {
	case err := <-tm.fatal:
		assert.True(t, domain.IsFatalFault(err))
	case <-time.After(5 * time.Second):
		t.Fatal("fatal handler not called")
	}
	assert.True(t, tm.controlState().Faulted)

	res, err := tm.as.Root.RequestFuture(tm.pid, domain.ActorHealthRequest{}, 3*time.Second).Result()
	require.NoError(t, err)
	assert.False(t, res.(domain.ActorHealthResponse).Healthy)
}
