package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

type ActorRef actor.PID

// ActorRequestMixIn carries an explicit reply address for requests that are
// forwarded or stashed before they are answered.
type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

// ActorResponseMixIn carries the error of a bus task. Transient bus faults
// never get here; only timeouts, device errors and the heater's fatal fault.
type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

// IsFatal reports whether the heater gave up during the task.
func (r ActorResponseMixIn) IsFatal() bool {
	return IsFatalFault(r.ResponseError)
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
	IsFatal() bool
}
