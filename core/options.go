package call

import (
	"context"
	"time"

	"github.com/koscakluka/delphi-call/core/audio"
	events "github.com/koscakluka/delphi-call/core/events"
)

type SessionOption func(*Session)

// Transcriber turns a finished recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, encoding audio.EncodingInfo) (string, error)
}

func WithAudioOutput(client AudioOutput) SessionOption {
	return func(s *Session) {
		s.output.Set(client)
	}
}

func WithAudioInput(client AudioInput) SessionOption {
	return func(s *Session) {
		s.input.Set(client)
	}
}

// WithTranscriber makes SendRecording send the transcript of a recording as
// text. The recording is uploaded as audio when transcription fails or comes
// back empty.
func WithTranscriber(client Transcriber) SessionOption {
	return func(s *Session) {
		s.transcriber = client
	}
}

// WithEventHandler registers the handler receiving session events. It is
// called from the goroutine that caused the event and must not block.
func WithEventHandler(handler func(events.Event)) SessionOption {
	return func(s *Session) {
		if handler != nil {
			s.emit = handler
		}
	}
}

// WithExchangeTimeout bounds how long a single reply stream may take.
// Zero means no limit.
func WithExchangeTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.exchangeTimeout = timeout
	}
}
