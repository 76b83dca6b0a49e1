// Package portaudio implements audio output and capture with blocking
// PortAudio streams.
package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/delphi-call/core/audio"
)

type playJob struct {
	chunk      audio.Chunk
	onEnded    func()
	generation uint64
}

type Client struct {
	framesPerBuffer int

	mu         sync.Mutex
	output     *portaudio.Stream
	jobs       chan playJob
	closed     chan struct{}
	writerDone chan struct{}
	// generation is bumped by Stop; jobs of an older generation are abandoned.
	generation atomic.Uint64

	captureMu     sync.Mutex
	captureCancel context.CancelFunc
	captureDone   chan struct{}
}

func NewClient(framesPerBuffer int) (*Client, error) {
	if framesPerBuffer <= 0 {
		return nil, fmt.Errorf("frames per buffer must be positive, got %d", framesPerBuffer)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &Client{framesPerBuffer: framesPerBuffer}, nil
}

// Open starts the playback stream and its writer.
func (c *Client) Open(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.output != nil {
		return nil
	}

	info := audio.PlaybackEncodingInfo()
	buffer := make([]float32, c.framesPerBuffer*info.Channels)
	stream, err := portaudio.OpenDefaultStream(0, info.Channels, float64(info.SampleRate), c.framesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("failed to open PortAudio output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("failed to start PortAudio output stream: %w", err)
	}

	c.output = stream
	c.jobs = make(chan playJob, 16)
	c.closed = make(chan struct{})
	c.writerDone = make(chan struct{})
	go c.writeLoop(stream, buffer, c.jobs, c.closed, c.writerDone)

	return nil
}

// Play hands a chunk to the writer. onEnded is called after its final buffer
// was written, unless Stop or Close came first.
func (c *Client) Play(chunk audio.Chunk, onEnded func()) error {
	c.mu.Lock()
	jobs, closed := c.jobs, c.closed
	c.mu.Unlock()
	if jobs == nil {
		return fmt.Errorf("output stream not open")
	}

	job := playJob{chunk: chunk, onEnded: onEnded, generation: c.generation.Load()}
	select {
	case jobs <- job:
		return nil
	case <-closed:
		return fmt.Errorf("output stream closed")
	}
}

// Stop abandons the chunk being written and everything queued behind it.
func (c *Client) Stop() error {
	c.generation.Add(1)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	stream, closed, writerDone := c.output, c.closed, c.writerDone
	c.output, c.jobs, c.closed, c.writerDone = nil, nil, nil, nil
	c.mu.Unlock()
	if stream == nil {
		return nil
	}

	c.generation.Add(1)
	close(closed)
	<-writerDone

	return errors.Join(stream.Stop(), stream.Close())
}

func (c *Client) writeLoop(stream *portaudio.Stream, buffer []float32, jobs <-chan playJob, closed <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-closed:
			return
		case job := <-jobs:
			if c.write(stream, buffer, job) && job.onEnded != nil {
				job.onEnded()
			}
		}
	}
}

// write renders one chunk and reports whether it is still current.
func (c *Client) write(stream *portaudio.Stream, buffer []float32, job playJob) bool {
	for offset := 0; offset < len(job.chunk); offset += len(buffer) {
		if c.generation.Load() != job.generation {
			return false
		}

		n := copy(buffer, job.chunk[offset:])
		clear(buffer[n:])
		if err := stream.Write(); err != nil {
			if errors.Is(err, portaudio.OutputUnderflowed) {
				continue
			}
			logger.Warn("failed to write to PortAudio stream", "error", err)
			break
		}
	}
	return c.generation.Load() == job.generation
}

// StartCapture reads the default input device until StopCapture or ctx is
// done, delivering little-endian PCM16 frames.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.captureCancel != nil {
		return nil
	}

	info := audio.CaptureEncodingInfo()
	buffer := make([]int16, c.framesPerBuffer*info.Channels)
	stream, err := portaudio.OpenDefaultStream(info.Channels, 0, float64(info.SampleRate), c.framesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("failed to open PortAudio input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("failed to start PortAudio input stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.captureCancel = cancel
	c.captureDone = done

	go func() {
		defer close(done)
		defer func() {
			if err := errors.Join(stream.Stop(), stream.Close()); err != nil {
				logger.Warn("failed to close PortAudio input stream", "error", err)
			}
		}()

		for ctx.Err() == nil {
			if err := stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
				logger.Warn("failed to read from PortAudio stream", "error", err)
				return
			}

			frame := make([]byte, len(buffer)*2)
			for i, sample := range buffer {
				binary.LittleEndian.PutUint16(frame[i*2:], uint16(sample))
			}
			onAudio(frame)
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	cancel, done := c.captureCancel, c.captureDone
	c.captureCancel, c.captureDone = nil, nil
	c.captureMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.CaptureEncodingInfo()
}

// Terminate closes every stream and releases PortAudio.
func (c *Client) Terminate() error {
	return errors.Join(c.StopCapture(), c.Close(), portaudio.Terminate())
}
