package events

import (
	"slices"
	"time"
)

// Kind names an event type. Stream kinds match the upstream "event" field.
type Kind string

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the fields shared by every event. Embed it and build it with
// NewBase.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

// IsKind reports whether event is non-nil and of one of kinds.
func IsKind(event Event, kinds ...Kind) bool {
	return event != nil && slices.Contains(kinds, event.Kind())
}
