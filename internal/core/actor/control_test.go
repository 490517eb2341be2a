package actor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeModbus answers ticks after delay with a fixed result.
func fakeModbus(delay time.Duration, calls *atomic.Int32) *actor.Props {
	return actor.PropsFromFunc(func(ctx actor.Context) {
		switch ctx.Message().(type) {
		case domain.ControlTickRequest:
			calls.Add(1)
			time.Sleep(delay)
			ctx.Respond(domain.ControlTickResponse{
				Result: &domain.ControlTickResult{
					Surplus: 1200,
					Heater: domain.HeaterSnapshot{
						Connected:     true,
						CommandedBits: domain.RelayBits{false, true, false},
					},
					Elapsed: delay,
				},
			})
		}
	})
}

func controlState(t *testing.T, as *actor.ActorSystem, pid *actor.PID) domain.GetControlStateResponse {
	t.Helper()
	res, err := as.Root.RequestFuture(pid, domain.GetControlStateRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	return res.(domain.GetControlStateResponse)
}

func TestControlActorPublishesTicks(t *testing.T) {
	as := actor.NewActorSystem()
	defer as.Shutdown()
	es := &eventstream.EventStream{}

	surplus := make(chan float64, 16)
	sub := es.Subscribe(func(evt any) {
		if ev, ok := evt.(domain.FloatSensorUpdateEvent); ok && ev.Id == domain.SENSOR_ID_SURPLUS_POWER {
			surplus <- ev.Value
		}
	})
	defer es.Unsubscribe(sub)

	var calls atomic.Int32
	modbusPID := as.Root.Spawn(fakeModbus(0, &calls))
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewControlActor(200*time.Millisecond, modbusPID, es, zap.NewNop())
	}))

	select {
	case v := <-surplus:
		assert.Equal(t, 1200.0, v)
	case <-time.After(2 * time.Second):
		t.Fatal("no surplus published")
	}

	time.Sleep(500 * time.Millisecond)
	state := controlState(t, as, pid)
	assert.GreaterOrEqual(t, state.Ticks, uint64(2))
	assert.Equal(t, uint64(0), state.Overruns)
	require.NotNil(t, state.Last)
	assert.Equal(t, domain.RelayBits{false, true, false}, state.Last.Heater.CommandedBits)

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health := res.(domain.ActorHealthResponse)
	assert.True(t, health.Healthy)
	assert.Equal(t, domain.ACTOR_ID_CONTROL, health.Id)
}

func TestControlActorCountsOverruns(t *testing.T) {
	as := actor.NewActorSystem()
	defer as.Shutdown()

	var calls atomic.Int32
	modbusPID := as.Root.Spawn(fakeModbus(300*time.Millisecond, &calls))
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewControlActor(100*time.Millisecond, modbusPID, &eventstream.EventStream{}, zap.NewNop())
	}))

	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, 3*time.Second, 50*time.Millisecond)

	state := controlState(t, as, pid)
	assert.GreaterOrEqual(t, state.Overruns, uint64(1))
	// ticks never overlap
	assert.LessOrEqual(t, int64(calls.Load()), int64(state.Ticks)+1)
}
