package call

import (
	"errors"
	"sync"
	"testing"

	"github.com/koscakluka/delphi-call/core/audio"
)

type playingRecorder struct {
	mu     sync.Mutex
	states []bool
}

func (r *playingRecorder) record(playing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, playing)
}

func (r *playingRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.states...)
}

func TestPlaybackQueuePlaysChunksSequentially(t *testing.T) {
	output := newFakeOutput()
	playing := &playingRecorder{}
	queue := NewPlaybackQueue(output, OnPlayingChanged(playing.record))

	const n = 5
	for i := range n {
		queue.Enqueue(audio.Chunk{float32(i)})
	}

	for i := range n {
		play := output.nextPlay(t)
		if play.chunk[0] != float32(i) {
			t.Fatalf("expected chunk %d, got %v", i, play.chunk)
		}
		output.expectNoPlay(t)
		play.onEnded()
	}

	waitFor(t, "queue to become idle", func() bool { return !queue.IsPlaying() })
	if _, _, _, maxActive := output.counts(); maxActive != 1 {
		t.Fatalf("expected at most one rendering chunk, got %d", maxActive)
	}

	states := playing.snapshot()
	if len(states) != 2 || !states[0] || states[1] {
		t.Fatalf("expected playing [true false], got %v", states)
	}
}

func TestPlaybackQueueEnqueueDoesNotPreempt(t *testing.T) {
	output := newFakeOutput()
	queue := NewPlaybackQueue(output)

	queue.Enqueue(audio.Chunk{1})
	first := output.nextPlay(t)

	queue.Enqueue(audio.Chunk{2})
	output.expectNoPlay(t)

	first.onEnded()
	second := output.nextPlay(t)
	if second.chunk[0] != 2 {
		t.Fatalf("expected second chunk, got %v", second.chunk)
	}
}

func TestPlaybackQueueIgnoresStaleCompletion(t *testing.T) {
	output := newFakeOutput()
	queue := NewPlaybackQueue(output)

	queue.Enqueue(audio.Chunk{1})
	queue.Enqueue(audio.Chunk{2})
	stale := output.nextPlay(t)

	generation := queue.Reset()
	if got := queue.Generation(); got != generation {
		t.Fatalf("expected generation %d, got %d", generation, got)
	}
	if queue.IsPlaying() {
		t.Fatalf("expected queue to be idle after reset")
	}
	if _, stops, _, _ := output.counts(); stops != 1 {
		t.Fatalf("expected device to be stopped once, got %d", stops)
	}

	stale.onEnded()
	output.expectNoPlay(t)

	if !queue.EnqueueFor(generation, audio.Chunk{3}) {
		t.Fatalf("expected chunk of current generation to be accepted")
	}
	play := output.nextPlay(t)
	if play.chunk[0] != 3 {
		t.Fatalf("expected chunk enqueued after reset, got %v", play.chunk)
	}
	stale.onEnded()
	output.expectNoPlay(t)
}

func TestPlaybackQueueDropsChunksOfDiscardedGeneration(t *testing.T) {
	output := newFakeOutput()
	queue := NewPlaybackQueue(output)

	old := queue.Reset()
	queue.Reset()

	if queue.EnqueueFor(old, audio.Chunk{1}) {
		t.Fatalf("expected chunk of discarded generation to be dropped")
	}
	output.expectNoPlay(t)
}

func TestPlaybackQueuePlayReplacesPending(t *testing.T) {
	output := newFakeOutput()
	queue := NewPlaybackQueue(output)

	queue.Enqueue(audio.Chunk{1})
	queue.Enqueue(audio.Chunk{2})
	first := output.nextPlay(t)

	queue.Play(audio.Chunk{9})
	greeting := output.nextPlay(t)
	if greeting.chunk[0] != 9 {
		t.Fatalf("expected immediate chunk, got %v", greeting.chunk)
	}

	first.onEnded()
	greeting.onEnded()
	output.expectNoPlay(t)
	waitFor(t, "queue to become idle", func() bool { return !queue.IsPlaying() })
}

func TestPlaybackQueueDeviceFailure(t *testing.T) {
	output := newFakeOutput()
	output.setPlayErr(errFakeDevice)

	var (
		mu     sync.Mutex
		errs   []error
		states []bool
	)
	queue := NewPlaybackQueue(output,
		OnPlaybackError(func(err error) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		}),
		OnPlayingChanged(func(playing bool) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, playing)
		}),
	)

	queue.Enqueue(audio.Chunk{1})

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
	var deviceErr *DeviceError
	if !errors.As(errs[0], &deviceErr) || !errors.Is(errs[0], errFakeDevice) {
		t.Fatalf("expected DeviceError wrapping device failure, got %v", errs[0])
	}
	if queue.IsPlaying() {
		t.Fatalf("expected queue to be idle after device failure")
	}
	if len(states) != 2 || !states[0] || states[1] {
		t.Fatalf("expected playing [true false], got %v", states)
	}
}

func TestPlaybackQueueWithoutOutput(t *testing.T) {
	var typedNil *fakeOutput
	var got error
	queue := NewPlaybackQueue(typedNil, OnPlaybackError(func(err error) { got = err }))

	queue.Enqueue(audio.Chunk{1})

	var deviceErr *DeviceError
	if !errors.As(got, &deviceErr) {
		t.Fatalf("expected DeviceError for unconfigured output, got %v", got)
	}
	if queue.IsPlaying() {
		t.Fatalf("expected queue to be idle")
	}
	queue.Reset()
}

func TestPlaybackQueueResetFromPlayingCallback(t *testing.T) {
	output := newFakeOutput()
	playing := &playingRecorder{}
	var queue *PlaybackQueue
	queue = NewPlaybackQueue(output, OnPlayingChanged(func(isPlaying bool) {
		playing.record(isPlaying)
		if isPlaying {
			queue.Reset()
		}
	}))

	queue.Enqueue(audio.Chunk{1})

	if queue.IsPlaying() {
		t.Fatalf("expected queue to be idle after reset")
	}
	states := playing.snapshot()
	if len(states) != 2 || !states[0] || states[1] {
		t.Fatalf("expected playing [true false], got %v", states)
	}
}

func TestPlaybackQueueLastNotificationMatchesState(t *testing.T) {
	output := newFakeOutput()
	playing := &playingRecorder{}
	queue := NewPlaybackQueue(output, OnPlayingChanged(playing.record))

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case play := <-output.plays:
				play.onEnded()
			case <-done:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for worker := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				if i%7 == worker%7 {
					queue.Reset()
				} else {
					queue.Enqueue(audio.Chunk{float32(i)})
				}
			}
		}()
	}
	wg.Wait()

	waitFor(t, "queue to drain", func() bool { return !queue.IsPlaying() })
	waitFor(t, "idle notification", func() bool {
		states := playing.snapshot()
		return len(states) == 0 || !states[len(states)-1]
	})

	states := playing.snapshot()
	for i := 1; i < len(states); i++ {
		if states[i] == states[i-1] {
			t.Fatalf("expected alternating notifications, got %v", states)
		}
	}
}
