package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/service"
	"github.com/transistorgit/pvboiler2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	// worst case inverter pass is 9 registers x 3 attempts x serial timeout
	TICK_DEADLINE        = 15 * time.Second
	TICK_TASK_TIMEOUT    = 20 * time.Second
	DEVICE_TASK_TIMEOUT  = 5 * time.Second
	ACTOR_STATE_IDLE     = "idle"
	ACTOR_STATE_TICKING  = "ticking"
	ACTOR_STATE_FAULTED  = "faulted"
	ACTOR_STATE_STARTING = "starting"
	ACTOR_STATE_STALLED  = "stalled"
)

// ModbusActor is the only owner of the bus devices. Work runs as a background
// task while every other message is stashed, so ticks never overlap and
// setters land strictly between ticks. A task that outlives its timeout is
// answered with the timeout error, but the stash is held until the work
// itself has returned.
type ModbusActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	loop        *service.ControlLoop
	gridMeter   *service.GridMeterSource
	tickTimeout time.Duration
	pending     int
	stalled     bool
	faulted     bool
	logger      *zap.Logger
}

type ModbusActorOption func(*ModbusActor)

func WithTickTaskTimeout(d time.Duration) ModbusActorOption {
	return func(a *ModbusActor) {
		a.tickTimeout = d
	}
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

// taskReturned is sent when the work of a background task has returned,
// whether or not its result was already delivered.
type taskReturned struct{}

// gridMeter may be nil when the surplus comes from the inverter.
func NewModbusActor(loop *service.ControlLoop, gridMeter *service.GridMeterSource, logger *zap.Logger, opts ...ModbusActorOption) *ModbusActor {
	act := &ModbusActor{
		loop:        loop,
		gridMeter:   gridMeter,
		tickTimeout: TICK_TASK_TIMEOUT,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MODBUS, logger),
	}
	for _, opt := range opts {
		opt(act)
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

// guarded wraps fn so the actor learns when the work returns. The result and
// the return notice are both awaited before the stash is released.
func guarded[T any](state *ModbusActor, ctx actor.Context, fn func() *T) func() *T {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.pending = 2
	return func() *T {
		defer root.Send(self, taskReturned{})
		return fn()
	}
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		if !state.loop.Heater().Connected() {
			panic(fmt.Errorf("heater: %w", domain.ErrDeviceNotFound))
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(state.health(ACTOR_STATE_IDLE))
	case domain.ControlTickRequest:
		state.logger.Debug("modbus@default: ControlTickRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, guarded(state, ctx, state.tick)),
			mapTaskResult[domain.ControlTickResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ControlTickResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.tickTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.GetDevicesInfoRequest:
		state.logger.Debug("modbus@default: GetDevicesInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, guarded(state, ctx, state.getDevicesInfo)),
			mapTaskResult[domain.GetDevicesInfoResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetDevicesInfoResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(DEVICE_TASK_TIMEOUT).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.SetInverterPowerLimitRequest:
		state.logger.Debug("modbus@default: SetInverterPowerLimitRequest", zap.Uint("limit", msg.LimitWatt))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		limit := msg.LimitWatt

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, guarded(state, ctx, func() *domain.SetInverterPowerLimitResponse {
			a := state.setInverterPowerLimit(limit)
			return &a
		})),
			mapTaskResult[domain.SetInverterPowerLimitResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetInverterPowerLimitResponse{
					DeviceCommandResponseMixIn: domain.DeviceCommandResponseMixIn{
						ActorResponseMixIn: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(DEVICE_TASK_TIMEOUT).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.SetTargetTemperatureRequest:
		// plain assignment between ticks
		state.logger.Debug("modbus@default: SetTargetTemperatureRequest", zap.Float64("target", msg.TargetTemperature))
		state.loop.Heater().SetTargetTemperature(msg.TargetTemperature)
		actorutil.ForRequest(msg).Respond(ctx, domain.SetTargetTemperatureResponse{
			TargetTemperature: state.loop.Heater().TargetTemperature(),
		})
	case domain.GridMeterReading:
		if state.gridMeter != nil {
			state.gridMeter.Update(msg.PowerWatt, msg.At)
		}
	case *actor.Stopping:
		state.logger.Debug("modbus@default stopping")
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if resp, ok := msg.message.(domain.ControlTickResponse); ok && resp.IsFatal() {
			state.faulted = true
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		if state.pending == 2 {
			state.stalled = true
			state.logger.Warn("modbus@WaitingModbus: task timed out, holding messages until it returns")
		}
		state.settle(ctx)
	case taskReturned:
		if state.stalled {
			state.logger.Info("modbus@WaitingModbus: stalled task returned")
		}
		state.settle(ctx)
	case domain.ActorHealthRequest:
		if state.stalled {
			ctx.Respond(domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MODBUS,
				Healthy: false,
				State:   ACTOR_STATE_STALLED,
			})
			return
		}
		ctx.Respond(state.health(ACTOR_STATE_TICKING))
	case domain.GridMeterReading:
		// the source has its own lock
		if state.gridMeter != nil {
			state.gridMeter.Update(msg.PowerWatt, msg.At)
		}
	case *actor.Stopping:
		state.logger.Debug("modbus@WaitingModbus stopping")
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) settle(ctx actor.Context) {
	state.pending--
	if state.pending > 0 {
		return
	}
	state.stalled = false
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *ModbusActor) health(current string) domain.ActorHealthResponse {
	if state.faulted {
		current = ACTOR_STATE_FAULTED
	}
	return domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MODBUS,
		Healthy: !state.faulted && state.loop.Heater().Connected(),
		State:   current,
	}
}

func (a *ModbusActor) tick() *domain.ControlTickResponse {
	ctx, cancel := context.WithTimeout(context.Background(), TICK_DEADLINE)
	defer cancel()

	result, err := a.loop.Tick(ctx)
	if err != nil && !domain.IsFatalFault(err) {
		a.logger.Error("modbus@tick failed", zap.Error(err))
	}
	return &domain.ControlTickResponse{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: err,
		},
		Result: result,
	}
}

func (a *ModbusActor) getDevicesInfo() *domain.GetDevicesInfoResponse {
	heater := a.loop.Heater().Info()
	resp := &domain.GetDevicesInfoResponse{
		Heater: &heater,
	}
	if inv := a.loop.Inverter(); inv != nil {
		info := inv.Info()
		resp.Inverter = &info
	}
	return resp
}

func (a *ModbusActor) setInverterPowerLimit(limit uint) domain.SetInverterPowerLimitResponse {
	inv := a.loop.Inverter()
	var err error
	if inv == nil {
		err = errors.New("no inverter on the bus")
	} else {
		err = inv.SetPowerLimit(limit)
	}
	if err != nil {
		a.logger.Error("modbus@default set power limit failed", zap.Error(err))
		return domain.SetInverterPowerLimitResponse{
			DeviceCommandResponseMixIn: domain.DeviceCommandResponseMixIn{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			},
		}
	}
	return domain.SetInverterPowerLimitResponse{
		LimitWatt: limit,
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
