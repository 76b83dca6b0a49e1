package events

const (
	// KindStreamAudioChunk identifies an audio payload of the reply stream.
	KindStreamAudioChunk Kind = "stream.audio_chunk"
	// KindStreamEnd identifies the end marker of the reply stream.
	KindStreamEnd Kind = "stream.end"
	// KindStreamUnrecognized identifies stream records with an unknown name.
	KindStreamUnrecognized Kind = "stream.unrecognized"
)

// Wire names used in the "event" field of [WireEvent].
const (
	WireAudioChunk = "audio-chunk"
	WireStreamEnd  = "stream-end"
)

// WireEvent is the JSON payload of one `data: ` frame.
type WireEvent struct {
	Event string `json:"event" jsonschema:"title=Event,description=Name of the stream event,enum=audio-chunk,enum=stream-end"`
	Audio string `json:"audio,omitempty" jsonschema:"title=Audio,description=Base64 encoded little-endian PCM16 mono audio at 44100 Hz"`
}

// StreamEvent is any record parsed from the reply stream.
type StreamEvent interface {
	Event
	streamEvent()
}

// StreamAudioChunk carries one base64 PCM16 payload.
type StreamAudioChunk struct {
	Base
	Audio string
}

// NewStreamAudioChunk creates a stream audio chunk event.
func NewStreamAudioChunk(audio string) StreamAudioChunk {
	return StreamAudioChunk{Base: NewBase(KindStreamAudioChunk), Audio: audio}
}

func (StreamAudioChunk) streamEvent() {}

// StreamEnd marks that the upstream is done replying.
type StreamEnd struct{ Base }

// NewStreamEnd creates a stream end event.
func NewStreamEnd() StreamEnd {
	return StreamEnd{Base: NewBase(KindStreamEnd)}
}

func (StreamEnd) streamEvent() {}

// StreamUnrecognized is a well-formed record with an unknown event name.
type StreamUnrecognized struct {
	Base
	Name string
}

// NewStreamUnrecognized creates an unrecognized stream event.
func NewStreamUnrecognized(name string) StreamUnrecognized {
	return StreamUnrecognized{Base: NewBase(KindStreamUnrecognized), Name: name}
}

func (StreamUnrecognized) streamEvent() {}

// FromWire maps a decoded payload onto its stream event.
func FromWire(wire WireEvent) StreamEvent {
	switch wire.Event {
	case WireAudioChunk:
		return NewStreamAudioChunk(wire.Audio)
	case WireStreamEnd:
		return NewStreamEnd()
	default:
		return NewStreamUnrecognized(wire.Event)
	}
}

// ToWire is the inverse of [FromWire] for events that have a wire shape.
func ToWire(event StreamEvent) WireEvent {
	switch typedEvent := event.(type) {
	case StreamAudioChunk:
		return WireEvent{Event: WireAudioChunk, Audio: typedEvent.Audio}
	case StreamEnd:
		return WireEvent{Event: WireStreamEnd}
	case StreamUnrecognized:
		return WireEvent{Event: typedEvent.Name}
	}
	return WireEvent{}
}
