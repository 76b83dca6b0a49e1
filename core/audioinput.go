package call

import (
	"context"
	"reflect"
	"sync/atomic"

	"github.com/koscakluka/delphi-call/core/audio"
)

// AudioInput is a capture device delivering raw PCM in its EncodingInfo.
type AudioInput interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	EncodingInfo() audio.EncodingInfo
}

type audioInput struct {
	// base stores the configured capture client.
	base AudioInput

	// isCapturing reports whether the input client is currently capturing audio.
	isCapturing atomic.Bool
}

func newAudioInput(client AudioInput) *audioInput {
	audioInput := audioInput{}
	audioInput.Set(client)
	return &audioInput
}

func (a *audioInput) Set(client AudioInput) {
	if a == nil {
		return
	}

	a.base = nil
	a.isCapturing.Store(false)
	if client == nil {
		return
	}
	if v := reflect.ValueOf(client); v.Kind() == reflect.Pointer && v.IsNil() {
		return
	}
	a.base = client
}

func (a *audioInput) IsConfigured() bool { return a != nil && a.base != nil }
func (a *audioInput) IsCapturing() bool  { return a != nil && a.isCapturing.Load() }

func (a *audioInput) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	if !a.IsConfigured() {
		return deviceError("start capture", errNoAudioInput)
	}

	if !a.isCapturing.CompareAndSwap(false, true) {
		return nil
	}
	if err := a.base.StartCapture(ctx, onAudio); err != nil {
		a.isCapturing.Store(false)
		return deviceError("start capture", err)
	}
	return nil
}

func (a *audioInput) StopCapture() error {
	if !a.IsConfigured() || !a.isCapturing.CompareAndSwap(true, false) {
		return nil
	}
	return deviceError("stop capture", a.base.StopCapture())
}

// EncodingInfo returns the capture encoding, falling back to the default
// recording format when no client is configured.
func (a *audioInput) EncodingInfo() audio.EncodingInfo {
	if !a.IsConfigured() {
		return audio.CaptureEncodingInfo()
	}

	if info := a.base.EncodingInfo(); !info.IsZero() {
		return info
	}
	return audio.CaptureEncodingInfo()
}
