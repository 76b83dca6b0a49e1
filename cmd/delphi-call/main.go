package main

import (
	"context"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	call "github.com/koscakluka/delphi-call/core"
	"github.com/koscakluka/delphi-call/core/delphi"
	events "github.com/koscakluka/delphi-call/core/events"
	"github.com/koscakluka/delphi-call/core/speechtotext/deepgram"
	"github.com/koscakluka/delphi-call/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	device, err := openAudio(cfg.AudioBackend)
	if err != nil {
		log.Fatalf("Failed to open audio: %v", err)
	}

	var program *tea.Program
	opts := []call.SessionOption{
		call.WithExchangeTimeout(cfg.ExchangeTimeout),
		call.WithEventHandler(func(event events.Event) {
			program.Send(sessionEventMsg{event: event})
		}),
	}
	if device != nil {
		opts = append(opts, call.WithAudioOutput(device), call.WithAudioInput(device))
	}
	if cfg.DeepgramAPIKey != "" {
		opts = append(opts, call.WithTranscriber(deepgram.NewTranscriptionClient(cfg.DeepgramAPIKey)))
	}

	client := delphi.NewClient(cfg.DelphiAPIKey, cfg.DelphiAPIBaseURI, delphi.WithScheme(cfg.DelphiAPIScheme))
	session := call.NewSession(client, opts...)

	program = tea.NewProgram(newModel(session, device != nil), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		log.Printf("Terminal UI failed: %v", err)
	}

	if state := session.State(); state == call.StateActive || state == call.StateExchanging {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := session.End(ctx); err != nil {
			log.Printf("Failed to end call: %v", err)
		}
		cancel()
	}
	if device != nil {
		if err := device.Terminate(); err != nil {
			log.Printf("Failed to release audio device: %v", err)
		}
	}
}
