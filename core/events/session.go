package events

const (
	KindCallStarted           Kind = "call.started"
	KindCallEnded             Kind = "call.ended"
	KindStateChanged          Kind = "session.state_changed"
	KindExchangeStarted       Kind = "exchange.started"
	KindExchangeEnded         Kind = "exchange.ended"
	KindPlaybackStateChanged  Kind = "playback.state_changed"
	KindRecordingStateChanged Kind = "recording.state_changed"
	KindSessionError          Kind = "session.error"
)

// CallStarted is emitted once the upstream issued a call id.
type CallStarted struct {
	Base
	CallID string
}

func NewCallStarted(callID string) CallStarted {
	return CallStarted{Base: NewBase(KindCallStarted), CallID: callID}
}

// CallEnded is emitted after the session returned to idle.
type CallEnded struct {
	Base
	CallID string
}

func NewCallEnded(callID string) CallEnded {
	return CallEnded{Base: NewBase(KindCallEnded), CallID: callID}
}

type StateChanged struct {
	Base
	From string
	To   string
}

func NewStateChanged(from, to string) StateChanged {
	return StateChanged{Base: NewBase(KindStateChanged), From: from, To: to}
}

type ExchangeStarted struct {
	Base
	ExchangeID string
}

func NewExchangeStarted(exchangeID string) ExchangeStarted {
	return ExchangeStarted{Base: NewBase(KindExchangeStarted), ExchangeID: exchangeID}
}

// ExchangeEnded is emitted when the reply stream of an exchange is done,
// whether it reached stream-end, closed early or failed.
type ExchangeEnded struct {
	Base
	ExchangeID string
}

func NewExchangeEnded(exchangeID string) ExchangeEnded {
	return ExchangeEnded{Base: NewBase(KindExchangeEnded), ExchangeID: exchangeID}
}

type PlaybackStateChanged struct {
	Base
	Playing bool
}

func NewPlaybackStateChanged(playing bool) PlaybackStateChanged {
	return PlaybackStateChanged{Base: NewBase(KindPlaybackStateChanged), Playing: playing}
}

type RecordingStateChanged struct {
	Base
	Recording bool
}

func NewRecordingStateChanged(recording bool) RecordingStateChanged {
	return RecordingStateChanged{Base: NewBase(KindRecordingStateChanged), Recording: recording}
}

// SessionError carries a failure meant for the user, Op names the operation
// that failed ("start", "send", "end", "playback", "record").
type SessionError struct {
	Base
	Op  string
	Err error
}

func NewSessionError(op string, err error) SessionError {
	return SessionError{Base: NewBase(KindSessionError), Op: op, Err: err}
}
