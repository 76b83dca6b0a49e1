package call

import (
	events "github.com/koscakluka/delphi-call/core/events"
)

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func (s *Session) emitStateChange(change stateChange) {
	if change.from == change.to {
		return
	}
	s.emit(events.NewStateChanged(string(change.from), string(change.to)))
}

func (s *Session) emitError(op string, err error) {
	if err == nil {
		return
	}
	s.emit(events.NewSessionError(op, err))
}
