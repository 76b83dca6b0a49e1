package miniaudio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/delphi-call/core/audio"
)

type playbackClient struct {
	device *malgo.Device
	config malgo.DeviceConfig

	samples []float32
	marks   []playbackMark

	mu      sync.Mutex
	audioMu sync.Mutex
}

// playbackMark fires once position samples of the buffer were rendered.
type playbackMark struct {
	position int
	callback func()
}

func (c *playbackClient) Open(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		if c.device.IsStarted() {
			return nil
		}
		return c.device.Start()
	}

	info := audio.PlaybackEncodingInfo()
	sampleRate := uint32(info.SampleRate)
	format := malgo.FormatF32
	bytesPerFrame := malgo.SampleSizeInBytes(format) * info.Channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(info.Channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 50 // ~20ms of audio
	c.config.Periods = 4

	device, err := malgo.InitDevice(
		audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	c.device = device

	return nil
}

func (c *playbackClient) Play(chunk audio.Chunk, onEnded func()) error {
	c.mu.Lock()
	started := c.device != nil && c.device.IsStarted()
	c.mu.Unlock()
	if !started {
		return fmt.Errorf("playback device not started")
	}

	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.samples = append(c.samples, chunk...)
	if onEnded != nil {
		c.marks = append(c.marks, playbackMark{position: len(c.samples), callback: onEnded})
	}
	return nil
}

func (c *playbackClient) Clear() {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.samples = nil
	c.marks = nil
}

func (c *playbackClient) Uninit() error {
	c.Clear()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}

	c.device.Uninit()
	c.device = nil
	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount)
		if len(pOutput) < need*bytesPerFrame {
			need = len(pOutput) / bytesPerFrame
		}

		c.audioMu.Lock()
		n := min(need, len(c.samples))
		for i, sample := range c.samples[:n] {
			binary.LittleEndian.PutUint32(pOutput[i*bytesPerFrame:], math.Float32bits(sample))
		}
		clear(pOutput[n*bytesPerFrame:])
		c.samples = c.samples[n:]
		passed := c.advanceMarks(n)
		c.audioMu.Unlock()

		if len(passed) > 0 {
			go func() {
				for _, mark := range passed {
					mark.callback()
				}
			}()
		}
	}
}

// advanceMarks moves marks by rendered samples and returns the ones reached.
// Callers hold audioMu.
func (c *playbackClient) advanceMarks(rendered int) []playbackMark {
	passed := 0
	for i := range c.marks {
		c.marks[i].position -= rendered
		if c.marks[i].position <= 0 {
			passed++
		}
	}
	if passed == 0 {
		return nil
	}

	reached := c.marks[:passed:passed]
	c.marks = c.marks[passed:]
	return reached
}
