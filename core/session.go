// Package call drives a voice call against the Delphi API: it starts and
// ends the call, sends text or recorded audio messages and plays the streamed
// audio replies back without gaps.
package call

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/delphi-call/core/audio"
	"github.com/koscakluka/delphi-call/core/delphi"
	events "github.com/koscakluka/delphi-call/core/events"
	"github.com/koscakluka/delphi-call/core/eventstream"
	"github.com/looplab/fsm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Upstream is the remote side of a call.
type Upstream interface {
	StartCall(ctx context.Context) (*delphi.Call, error)
	EndCall(ctx context.Context, callID string) error
	Respond(ctx context.Context, req delphi.RespondRequest) (io.ReadCloser, error)
}

type Session struct {
	upstream    Upstream
	output      *audioOutput
	input       *audioInput
	queue       *PlaybackQueue
	transcriber Transcriber
	recorder    recorder

	emit            eventEmitter
	exchangeTimeout time.Duration

	// deviceMu orders opening the output for a call against closing it in
	// End, so a call that already ended never reopens the device.
	deviceMu sync.Mutex

	mu       sync.Mutex
	machine  *fsm.FSM
	callID   string
	exchange *Exchange
	// calls is bumped when a call becomes active and again when it ends.
	calls uint64
}

func NewSession(upstream Upstream, opts ...SessionOption) *Session {
	s := &Session{
		upstream: upstream,
		output:   newAudioOutput(nil),
		input:    newAudioInput(nil),
		emit:     noopEventEmitter,
		machine:  newStateMachine(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.queue = newPlaybackQueue(s.output,
		OnPlayingChanged(func(playing bool) {
			s.emit(events.NewPlaybackStateChanged(playing))
		}),
		OnPlaybackError(func(err error) {
			s.emitError("playback", err)
		}),
	)
	return s
}

// Start asks the upstream for a new call and plays its greeting. It is
// allowed when idle or after a failed start.
func (s *Session) Start(ctx context.Context) (*delphi.Call, error) {
	ctx, span := tracer.Start(ctx, "start call")
	defer span.End()

	s.mu.Lock()
	change, err := s.transition(ctx, eventStart)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.emitStateChange(change)

	call, err := s.upstream.StartCall(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		s.mu.Lock()
		change, _ = s.transition(ctx, eventFail)
		s.mu.Unlock()
		s.emitStateChange(change)
		s.emitError("start", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("call.id", call.ID))

	s.mu.Lock()
	s.callID = call.ID
	change, _ = s.transition(ctx, eventStarted)
	s.calls++
	generation := s.calls
	s.mu.Unlock()
	s.emitStateChange(change)
	s.emit(events.NewCallStarted(call.ID))

	opened, err := s.openOutput(ctx, generation)
	if err != nil {
		logger.WarnContext(ctx, "failed to open audio output", "error", err)
		span.AddEvent("audio output unavailable")
		s.emitError("open output", err)
		return call, nil
	}
	if !opened {
		span.AddEvent("call ended before audio output was opened")
		return call, nil
	}
	s.playGreeting(ctx, generation, call.GreetingAudio)

	return call, nil
}

func (s *Session) isCurrentCall(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls == generation
}

// openOutput opens the output device for the call started as generation. It
// reports false without touching the device once that call has ended.
func (s *Session) openOutput(ctx context.Context, generation uint64) (bool, error) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()

	if !s.isCurrentCall(generation) {
		return false, nil
	}
	return true, s.output.Open(ctx)
}

func (s *Session) playGreeting(ctx context.Context, generation uint64, greeting string) {
	if greeting == "" {
		return
	}

	chunk, err := audio.DecodePCM16(greeting)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode greeting audio", "error", err)
		s.emitError("greeting", err)
		return
	}

	if !s.isCurrentCall(generation) {
		return
	}
	// End resets the queue after ending the call, so a reset taken before
	// the second check either goes stale or gets silenced by that reset.
	playback := s.queue.Reset()
	if !s.isCurrentCall(generation) {
		return
	}
	s.queue.EnqueueFor(playback, chunk)
}

// SendText sends a text message and starts streaming the reply.
func (s *Session) SendText(ctx context.Context, text string) (*Exchange, error) {
	return s.send(ctx, delphi.RespondRequest{Text: text})
}

// SendAudio uploads a recorded clip and starts streaming the reply.
func (s *Session) SendAudio(ctx context.Context, raw []byte) (*Exchange, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyRecording
	}
	return s.send(ctx, delphi.RespondRequest{Audio: audio.EncodeBase64(raw)})
}

func (s *Session) send(ctx context.Context, req delphi.RespondRequest) (*Exchange, error) {
	ctx, span := tracer.Start(ctx, "send message", trace.WithAttributes(
		attribute.Bool("message.audio", req.Audio != ""),
	))
	defer span.End()

	s.mu.Lock()
	if State(s.machine.Current()) == StateExchanging {
		s.mu.Unlock()
		return nil, ErrExchangeInProgress
	}
	change, err := s.transition(ctx, eventSend)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	req.CallID = s.callID
	exchange := newExchange(ctx, uuid.NewString(), s.exchangeTimeout)
	s.exchange = exchange
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("call.id", req.CallID),
		attribute.String("exchange.id", exchange.ID()),
	)
	s.emitStateChange(change)
	s.emit(events.NewExchangeStarted(exchange.ID()))

	generation := s.queue.Reset()

	body, err := s.upstream.Respond(exchange.ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.finishExchange(exchange, err)
		return nil, err
	}
	exchange.setBody(body)

	go s.consume(exchange, generation, body)
	return exchange, nil
}

// consume reads the reply stream of one exchange in arrival order.
func (s *Session) consume(exchange *Exchange, generation uint64, body io.ReadCloser) {
	defer body.Close()
	ctx := exchange.ctx

	var (
		ended     bool
		streamErr error
	)
	for event, err := range eventstream.Read(ctx, body) {
		if err != nil {
			streamErr = err
			break
		}

		switch event := event.(type) {
		case events.StreamAudioChunk:
			chunk, err := audio.DecodePCM16(event.Audio)
			if err != nil {
				logger.WarnContext(ctx, "skipping undecodable audio chunk",
					"exchange_id", exchange.ID(),
					"error", err)
				continue
			}
			s.queue.EnqueueFor(generation, chunk)
		case events.StreamEnd:
			ended = true
		case events.StreamUnrecognized:
			logger.DebugContext(ctx, "ignoring unrecognized stream event",
				"exchange_id", exchange.ID(),
				"event", event.Name)
		}
		if ended {
			break
		}
	}

	if !ended && streamErr == nil {
		if err := ctx.Err(); err != nil {
			streamErr = err
		} else {
			logger.WarnContext(ctx, "reply stream closed before stream end",
				"exchange_id", exchange.ID())
		}
	}
	s.finishExchange(exchange, streamErr)
}

// finishExchange returns the session to active if exchange is still the
// current one. Exchanges abandoned by End only get their handle resolved.
func (s *Session) finishExchange(exchange *Exchange, err error) {
	ctx := context.WithoutCancel(exchange.ctx)

	s.mu.Lock()
	current := s.exchange == exchange
	var change stateChange
	if current {
		s.exchange = nil
		change, _ = s.transition(ctx, eventExchangeDone)
	}
	s.mu.Unlock()

	if !current {
		exchange.finish(context.Canceled)
		return
	}
	exchange.finish(err)

	s.emitStateChange(change)
	s.emit(events.NewExchangeEnded(exchange.ID()))
	if err != nil {
		logger.WarnContext(ctx, "reply stream failed",
			"exchange_id", exchange.ID(),
			"error", err)
		s.emitError("send", err)
	}
}

// StartRecording starts capturing a clip. It is only allowed while the call
// is active and no reply is streaming.
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	state := State(s.machine.Current())
	s.mu.Unlock()
	if state != StateActive {
		return fmt.Errorf("%w: cannot record while %s", ErrInvalidState, state)
	}

	if !s.recorder.start() {
		return nil
	}
	if err := s.input.StartCapture(context.WithoutCancel(ctx), s.recorder.append); err != nil {
		s.recorder.stop()
		s.emitError("record", err)
		return err
	}

	s.emit(events.NewRecordingStateChanged(true))
	return nil
}

// StopRecording stops capturing and returns the clip as a WAV file.
func (s *Session) StopRecording() ([]byte, error) {
	pcm, info, err := s.stopRecording()
	if err != nil {
		return nil, err
	}
	return audio.EncodeWAV(pcm, info)
}

func (s *Session) stopRecording() ([]byte, audio.EncodingInfo, error) {
	pcm, ok := s.recorder.stop()
	if !ok {
		return nil, audio.EncodingInfo{}, ErrNotRecording
	}

	err := s.input.StopCapture()
	s.emit(events.NewRecordingStateChanged(false))
	if err != nil {
		s.emitError("record", err)
		return nil, audio.EncodingInfo{}, err
	}
	if len(pcm) == 0 {
		return nil, audio.EncodingInfo{}, ErrEmptyRecording
	}

	return pcm, s.input.EncodingInfo(), nil
}

// SendRecording stops the current recording and sends it. With a transcriber
// configured the transcript is sent as text, otherwise the clip is uploaded.
func (s *Session) SendRecording(ctx context.Context) (*Exchange, error) {
	pcm, info, err := s.stopRecording()
	if err != nil {
		return nil, err
	}

	if s.transcriber != nil {
		transcript, err := s.transcriber.Transcribe(ctx, pcm, info)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "transcription failed, uploading audio instead", "error", err)
		case strings.TrimSpace(transcript) == "":
			logger.InfoContext(ctx, "empty transcript, uploading audio instead")
		default:
			return s.SendText(ctx, strings.TrimSpace(transcript))
		}
	}

	wav, err := audio.EncodeWAV(pcm, info)
	if err != nil {
		return nil, err
	}
	return s.SendAudio(ctx, wav)
}

// End cancels any streaming reply, silences playback and ends the call
// upstream. The session is idle afterwards even when the upstream request
// fails; that error is returned.
func (s *Session) End(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "end call")
	defer span.End()

	s.mu.Lock()
	change, err := s.transition(ctx, eventEnd)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	callID := s.callID
	exchange := s.exchange
	s.exchange = nil
	s.calls++
	s.mu.Unlock()
	span.SetAttributes(attribute.String("call.id", callID))

	if exchange != nil {
		exchange.abort()
	}
	s.emitStateChange(change)
	if exchange != nil {
		s.emit(events.NewExchangeEnded(exchange.ID()))
	}

	if _, ok := s.recorder.stop(); ok {
		if err := s.input.StopCapture(); err != nil {
			logger.WarnContext(ctx, "failed to stop audio capture", "error", err)
		}
		s.emit(events.NewRecordingStateChanged(false))
	}

	s.queue.Reset()
	s.deviceMu.Lock()
	closeErr := s.output.Close()
	s.deviceMu.Unlock()
	if closeErr != nil {
		logger.WarnContext(ctx, "failed to close audio output", "error", closeErr)
		s.emitError("close output", closeErr)
	}

	endErr := s.upstream.EndCall(ctx, callID)

	s.mu.Lock()
	s.callID = ""
	change, _ = s.transition(ctx, eventEnded)
	s.mu.Unlock()
	s.emitStateChange(change)
	s.emit(events.NewCallEnded(callID))

	if endErr != nil {
		span.RecordError(endErr)
		span.SetStatus(codes.Error, endErr.Error())
		s.emitError("end", endErr)
		return endErr
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State(s.machine.Current())
}

func (s *Session) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

func (s *Session) IsPlaying() bool { return s.queue.IsPlaying() }

// IsSending reports whether a reply is still streaming.
func (s *Session) IsSending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchange != nil
}

func (s *Session) IsRecording() bool { return s.recorder.isRecording() }
