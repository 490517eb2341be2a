package actor

import (
	"fmt"
	"time"

	"github.com/transistorgit/pvboiler2mqtt/internal/core/domain"
	"github.com/transistorgit/pvboiler2mqtt/internal/core/events"
	. "github.com/transistorgit/pvboiler2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	// longer than the modbus actor's own tick timeout
	CONTROL_TICK_TIMEOUT = 25 * time.Second
)

// ControlActor paces the control loop. A tick is only requested after the
// previous one answered, and the next one is due one period after the
// previous started.
type ControlActor struct {
	ActorWithStates
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	modbusActor *actor.PID
	eventStream *eventstream.EventStream
	period      time.Duration

	tickStarted time.Time
	last        *domain.ControlTickResult
	updatedAt   time.Time
	ticks       uint64
	overruns    uint64
	faulted     bool

	logger *zap.Logger
}

type controlTick struct {
}

type controlStarting struct{ *ControlActor }
type controlIdle struct{ *ControlActor }
type controlTicking struct{ *ControlActor }
type controlFaulted struct{ *ControlActor }

func (controlStarting) Name() string { return "starting" }
func (controlIdle) Name() string     { return "idle" }
func (controlTicking) Name() string  { return "ticking" }
func (controlFaulted) Name() string  { return "faulted" }

func NewControlActor(period time.Duration, modbusActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *ControlActor {
	act := &ControlActor{
		ActorWithStates: ActorWithStates{Behavior: actor.NewBehavior()},
		stash:           &Stash{},
		modbusActor:     modbusActor,
		eventStream:     eventStream,
		period:          period,
		logger:          ActorLogger(domain.ACTOR_ID_CONTROL, logger),
	}
	act.Become(controlStarting{act})
	return act
}

func (state *ControlActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

func (s controlStarting) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		s.logger.Debug("control@starting started", zap.Duration("period", s.period))
		s.scheduler = scheduler.NewTimerScheduler(ctx)
		ctx.Send(ctx.Self(), controlTick{})
		s.Become(controlIdle{s.ControlActor})
		s.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		s.logger.Debug("control@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		s.stash.Stash(ctx, msg)
	}
}

func (s controlIdle) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case controlTick:
		s.logger.Debug("control@idle tick")
		s.tickStarted = time.Now()
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(s.modbusActor, domain.ControlTickRequest{}, CONTROL_TICK_TIMEOUT), func(err error) any {
			return domain.ControlTickResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		s.Become(controlTicking{s.ControlActor})
	default:
		s.common(ctx, msg)
	}
}

func (s controlTicking) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ControlTickResponse:
		elapsed := time.Since(s.tickStarted)
		if msg.HasResponseError() {
			err := msg.GetResponseError()
			if msg.IsFatal() {
				s.logger.Error("control@ticking heater gave up", zap.Error(err))
				s.faulted = true
				s.updatedAt = time.Now()
				if msg.Result != nil {
					s.last = msg.Result
					s.publish(events.ControlTickToUpdateEvents(msg.Result))
				}
				ctx.Send(ctx.Parent(), domain.FatalFaultEvent{Error: err})
				s.Become(controlFaulted{s.ControlActor})
				return
			}
			s.logger.Error("control@ticking tick failed", zap.Error(err))
		} else if msg.Result != nil {
			s.ticks++
			s.last = msg.Result
			s.updatedAt = time.Now()
			s.publish(events.ControlTickToUpdateEvents(msg.Result))
		}
		s.scheduleNext(ctx, elapsed)
		s.Become(controlIdle{s.ControlActor})
	case controlTick:
		// a tick is still running
		s.logger.Debug("control@ticking: drop tick")
	default:
		s.common(ctx, msg)
	}
}

func (s controlFaulted) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case controlTick:
	default:
		s.common(ctx, msg)
	}
}

// common handles the queries every state answers.
func (state *ControlActor) common(ctx actor.Context, msg any) {
	switch msg.(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug(fmt.Sprintf("control@%s: ActorHealthRequest", state.StateName()))
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CONTROL,
			Healthy: !state.faulted,
			State:   state.StateName(),
		})
	case domain.GetControlStateRequest:
		ctx.Respond(domain.GetControlStateResponse{
			Last:      state.last,
			Ticks:     state.ticks,
			Overruns:  state.overruns,
			Faulted:   state.faulted,
			UpdatedAt: state.updatedAt,
		})
	case *actor.Stopping:
		state.logger.Debug(fmt.Sprintf("control@%s stopping", state.StateName()))
	case *actor.Restarting, *actor.Stopped:
	default:
		state.logger.Debug(fmt.Sprintf("control@%s default recv", state.StateName()), zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ControlActor) scheduleNext(ctx actor.Context, elapsed time.Duration) {
	next := state.period - elapsed
	if next < 0 {
		state.overruns++
		state.logger.Warn("control@ticking: tick overran the period",
			zap.Duration("elapsed", elapsed),
			zap.Duration("period", state.period),
			zap.Uint64("overruns", state.overruns))
		next = 0
	}
	state.scheduler.RequestOnce(next, ctx.Self(), controlTick{})
}

func (state *ControlActor) publish(evs []any) {
	for _, ev := range evs {
		state.eventStream.Publish(ev)
	}
}
