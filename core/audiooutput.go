package call

import (
	"context"
	"reflect"

	"github.com/koscakluka/delphi-call/core/audio"
)

// AudioOutput is a playback device. Play submits one chunk and returns
// without waiting; onEnded is called once the chunk finished rendering.
// After Stop, callbacks of chunks submitted before it may be dropped.
type AudioOutput interface {
	Open(ctx context.Context) error
	Play(chunk audio.Chunk, onEnded func()) error
	Stop() error
	Close() error
}

// audioOutput is the facade the session and the playback queue talk to.
// Nil and typed-nil clients are treated as unconfigured.
type audioOutput struct {
	base AudioOutput
}

func newAudioOutput(client AudioOutput) *audioOutput {
	audioOutput := audioOutput{}
	audioOutput.Set(client)
	return &audioOutput
}

// Set replaces the configured output client.
func (a *audioOutput) Set(client AudioOutput) {
	if a == nil {
		return
	}

	a.base = nil
	if isNilAudioOutput(client) {
		return
	}
	a.base = client
}

func (a *audioOutput) isConfigured() bool { return a != nil && a.base != nil }

func (a *audioOutput) Open(ctx context.Context) error {
	if !a.isConfigured() {
		return deviceError("open", errNoAudioOutput)
	}
	return deviceError("open", a.base.Open(ctx))
}

// Play forwards a chunk. Without a configured client the chunk is refused
// with a DeviceError so the queue does not wait for a completion that will
// never come.
func (a *audioOutput) Play(chunk audio.Chunk, onEnded func()) error {
	if !a.isConfigured() {
		return deviceError("play", errNoAudioOutput)
	}
	return deviceError("play", a.base.Play(chunk, onEnded))
}

// Stop silences the device. It is a no-op when nothing is configured.
func (a *audioOutput) Stop() error {
	if !a.isConfigured() {
		return nil
	}
	return deviceError("stop", a.base.Stop())
}

func (a *audioOutput) Close() error {
	if !a.isConfigured() {
		return nil
	}
	return deviceError("close", a.base.Close())
}

// isNilAudioOutput detects nil and typed-nil interface values so Set can
// avoid storing unusable interface wrappers as configured clients.
func isNilAudioOutput(client AudioOutput) bool {
	if client == nil {
		return true
	}

	v := reflect.ValueOf(client)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
