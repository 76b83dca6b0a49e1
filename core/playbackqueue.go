package call

import (
	"context"
	"sync"

	"github.com/koscakluka/delphi-call/core/audio"
	"go.opentelemetry.io/otel/metric"
)

type queueState int

const (
	queueIdle queueState = iota
	queueDraining
)

// PlaybackQueue plays chunks back to back through a single output device.
// At most one chunk is rendering at any time; chunks play in the order they
// were enqueued and a new chunk never preempts the one rendering.
type PlaybackQueue struct {
	output *audioOutput

	// submitMu serializes device submissions against Reset so a chunk popped
	// before a reset is never handed to the device after it.
	submitMu sync.Mutex

	mu         sync.Mutex
	state      queueState
	pending    []audio.Chunk
	generation uint64

	// notifyMu guards the playing notifications. One caller delivers at a
	// time and keeps delivering until the reported value matches state.
	notifyMu      sync.Mutex
	notifying     bool
	notifyPending bool
	notified      bool

	onPlayingChanged func(playing bool)
	onError          func(err error)

	chunksEnqueued metric.Int64Counter
}

type PlaybackQueueOption func(*PlaybackQueue)

// OnPlayingChanged is called whenever the queue switches between idle and
// draining. Calls never overlap; flips that happen while one is running are
// folded into the next call.
func OnPlayingChanged(callback func(playing bool)) PlaybackQueueOption {
	return func(q *PlaybackQueue) {
		if callback != nil {
			q.onPlayingChanged = callback
		}
	}
}

// OnPlaybackError is called when the device refuses a chunk. Pending chunks
// are dropped at that point and the queue is idle again.
func OnPlaybackError(callback func(err error)) PlaybackQueueOption {
	return func(q *PlaybackQueue) {
		if callback != nil {
			q.onError = callback
		}
	}
}

func NewPlaybackQueue(output AudioOutput, opts ...PlaybackQueueOption) *PlaybackQueue {
	return newPlaybackQueue(newAudioOutput(output), opts...)
}

func newPlaybackQueue(output *audioOutput, opts ...PlaybackQueueOption) *PlaybackQueue {
	q := &PlaybackQueue{
		output:           output,
		onPlayingChanged: func(bool) {},
		onError:          func(error) {},
	}
	for _, opt := range opts {
		opt(q)
	}

	q.chunksEnqueued, _ = meter.Int64Counter("call.playback.chunks_enqueued")
	return q
}

// Enqueue appends a chunk to the current generation.
func (q *PlaybackQueue) Enqueue(chunk audio.Chunk) {
	q.mu.Lock()
	generation := q.generation
	q.mu.Unlock()

	q.EnqueueFor(generation, chunk)
}

// EnqueueFor appends a chunk if generation is still current and reports
// whether it was accepted. Chunks of a generation discarded by Reset are
// dropped.
func (q *PlaybackQueue) EnqueueFor(generation uint64, chunk audio.Chunk) bool {
	q.mu.Lock()
	if generation != q.generation {
		q.mu.Unlock()
		return false
	}

	q.pending = append(q.pending, chunk)
	if q.chunksEnqueued != nil {
		q.chunksEnqueued.Add(context.Background(), 1)
	}
	if q.state == queueDraining {
		q.mu.Unlock()
		return true
	}
	q.state = queueDraining
	q.mu.Unlock()

	q.notifyPlaying()
	q.drainNext(generation)
	return true
}

// Play discards everything pending and plays a single chunk right away.
func (q *PlaybackQueue) Play(chunk audio.Chunk) {
	q.EnqueueFor(q.Reset(), chunk)
}

// Reset drops pending chunks, silences the device and returns the new
// generation. Completions of chunks submitted before the reset are ignored.
func (q *PlaybackQueue) Reset() uint64 {
	q.submitMu.Lock()

	q.mu.Lock()
	q.generation++
	generation := q.generation
	wasPlaying := q.state == queueDraining
	q.pending = nil
	q.state = queueIdle
	q.mu.Unlock()

	err := q.output.Stop()
	q.submitMu.Unlock()

	if wasPlaying {
		q.notifyPlaying()
	}
	if err != nil {
		q.onError(err)
	}
	return generation
}

func (q *PlaybackQueue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state == queueDraining
}

// Generation returns the current generation.
func (q *PlaybackQueue) Generation() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.generation
}

// notifyPlaying reports the current playing state if it differs from the
// last one reported. Calls racing an ongoing delivery are folded into it, so
// the last value delivered is always the state the queue settled in.
func (q *PlaybackQueue) notifyPlaying() {
	q.notifyMu.Lock()
	if q.notifying {
		q.notifyPending = true
		q.notifyMu.Unlock()
		return
	}
	q.notifying = true

	for {
		q.notifyPending = false
		playing := q.IsPlaying()
		changed := playing != q.notified
		q.notified = playing
		q.notifyMu.Unlock()

		if changed {
			q.onPlayingChanged(playing)
		}

		q.notifyMu.Lock()
		if !q.notifyPending {
			q.notifying = false
			q.notifyMu.Unlock()
			return
		}
	}
}

// drainNext submits the head of the queue, or returns the queue to idle when
// nothing is pending. It runs once per completion of the previous chunk.
func (q *PlaybackQueue) drainNext(generation uint64) {
	q.submitMu.Lock()

	q.mu.Lock()
	if generation != q.generation || q.state != queueDraining {
		q.mu.Unlock()
		q.submitMu.Unlock()
		return
	}
	if len(q.pending) == 0 {
		q.state = queueIdle
		q.mu.Unlock()
		q.submitMu.Unlock()
		q.notifyPlaying()
		return
	}
	chunk := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.mu.Unlock()

	var ended sync.Once
	err := q.output.Play(chunk, func() {
		ended.Do(func() { go q.drainNext(generation) })
	})
	q.submitMu.Unlock()
	if err == nil {
		return
	}

	q.mu.Lock()
	current := generation == q.generation
	if current {
		q.pending = nil
		q.state = queueIdle
	}
	q.mu.Unlock()

	if current {
		logger.Warn("audio device refused chunk", "error", err)
		q.notifyPlaying()
		q.onError(err)
	}
}
