package main

import (
	"fmt"

	call "github.com/koscakluka/delphi-call/core"
	"github.com/koscakluka/delphi-call/core/audio/miniaudio"
	"github.com/koscakluka/delphi-call/core/audio/portaudio"
	"github.com/koscakluka/delphi-call/internal/config"
)

const portaudioFramesPerBuffer = 1024

type audioDevice interface {
	call.AudioOutput
	call.AudioInput
	Terminate() error
}

// openAudio returns nil without error when audio is disabled.
func openAudio(backend config.AudioBackend) (audioDevice, error) {
	switch backend {
	case config.AudioBackendMiniaudio:
		client, err := miniaudio.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create miniaudio client: %w", err)
		}
		return client, nil
	case config.AudioBackendPortaudio:
		client, err := portaudio.NewClient(portaudioFramesPerBuffer)
		if err != nil {
			return nil, fmt.Errorf("failed to create portaudio client: %w", err)
		}
		return client, nil
	case config.AudioBackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}
