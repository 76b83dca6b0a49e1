package call

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateActive     State = "active"
	StateExchanging State = "exchanging"
	StateEnding     State = "ending"
	StateError      State = "error"
)

const (
	eventStart        = "start"
	eventStarted      = "started"
	eventFail         = "fail"
	eventSend         = "send"
	eventExchangeDone = "exchange_done"
	eventEnd          = "end"
	eventEnded        = "ended"
)

func newStateMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StateIdle), string(StateError)}, Dst: string(StateStarting)},
			{Name: eventStarted, Src: []string{string(StateStarting)}, Dst: string(StateActive)},
			{Name: eventFail, Src: []string{string(StateStarting)}, Dst: string(StateError)},
			{Name: eventSend, Src: []string{string(StateActive)}, Dst: string(StateExchanging)},
			{Name: eventExchangeDone, Src: []string{string(StateExchanging)}, Dst: string(StateActive)},
			{Name: eventEnd, Src: []string{string(StateActive), string(StateExchanging)}, Dst: string(StateEnding)},
			{Name: eventEnded, Src: []string{string(StateEnding)}, Dst: string(StateIdle)},
		},
		fsm.Callbacks{},
	)
}

type stateChange struct {
	from State
	to   State
}

// transition fires event on the machine. Callers hold the session lock.
func (s *Session) transition(ctx context.Context, event string) (stateChange, error) {
	from := State(s.machine.Current())
	if err := s.machine.Event(ctx, event); err != nil {
		return stateChange{}, fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, event, from)
	}
	return stateChange{from: from, to: State(s.machine.Current())}, nil
}
