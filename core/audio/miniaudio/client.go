// Package miniaudio implements audio output and capture on top of miniaudio
// through malgo.
package miniaudio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/delphi-call/core/audio"
)

// Client owns one miniaudio context with a playback and a capture device.
// The playback device lives between Open and Close; the capture device is
// initialized on first use.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playbackClient
	captureClient
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) { logger.Debug("malgo", "message", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	return &Client{audioContext: audioCtx}, nil
}

// Open initializes and starts the playback device.
func (c *Client) Open(_ context.Context) error {
	return c.playbackClient.Open(c.audioContext)
}

// Play queues a chunk behind anything already buffered and calls onEnded
// once its last sample was handed to the device.
func (c *Client) Play(chunk audio.Chunk, onEnded func()) error {
	return c.playbackClient.Play(chunk, onEnded)
}

// Stop drops buffered audio. Completion callbacks of dropped chunks are
// never called.
func (c *Client) Stop() error {
	c.playbackClient.Clear()
	return nil
}

// Close tears down the playback device. It can be reopened with Open.
func (c *Client) Close() error {
	return c.playbackClient.Uninit()
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	if err := c.captureClient.Init(c.audioContext); err != nil {
		return err
	}
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

// EncodingInfo describes what StartCapture delivers.
func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.CaptureEncodingInfo()
}

// Terminate releases both devices and the audio context.
func (c *Client) Terminate() error {
	err := errors.Join(
		c.captureClient.Uninit(),
		c.playbackClient.Uninit(),
		c.audioContext.Uninit(),
	)
	c.audioContext.Free()
	return err
}
