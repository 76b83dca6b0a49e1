package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/delphi-call/core/audio"
)

type submittedChunk struct {
	chunk   audio.Chunk
	onEnded func()
}

type fakeOutput struct {
	mu        sync.Mutex
	rendering int
	maxActive int
	opens     int
	stops     int
	closes    int
	openErr   error
	playErr   error

	plays chan submittedChunk
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{plays: make(chan submittedChunk, 64)}
}

func (f *fakeOutput) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f.openErr
}

func (f *fakeOutput) Play(chunk audio.Chunk, onEnded func()) error {
	f.mu.Lock()
	if f.playErr != nil {
		err := f.playErr
		f.mu.Unlock()
		return err
	}
	f.rendering++
	if f.rendering > f.maxActive {
		f.maxActive = f.rendering
	}
	f.mu.Unlock()

	f.plays <- submittedChunk{chunk: chunk, onEnded: func() {
		f.mu.Lock()
		if f.rendering > 0 {
			f.rendering--
		}
		f.mu.Unlock()
		onEnded()
	}}
	return nil
}

func (f *fakeOutput) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.rendering = 0
	return nil
}

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.rendering = 0
	return nil
}

func (f *fakeOutput) counts() (opens, stops, closes, maxActive int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.stops, f.closes, f.maxActive
}

func (f *fakeOutput) setPlayErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playErr = err
}

func (f *fakeOutput) nextPlay(t *testing.T) submittedChunk {
	t.Helper()
	select {
	case play := <-f.plays:
		return play
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for chunk to be submitted")
		return submittedChunk{}
	}
}

func (f *fakeOutput) expectNoPlay(t *testing.T) {
	t.Helper()
	select {
	case play := <-f.plays:
		t.Fatalf("expected no chunk to be submitted, got %v", play.chunk)
	case <-time.After(50 * time.Millisecond):
	}
}

var errFakeDevice = errors.New("fake device failure")

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
