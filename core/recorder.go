package call

import (
	"sync"
)

// recorder accumulates captured PCM between start and stop.
type recorder struct {
	mu        sync.Mutex
	recording bool
	pcm       []byte
}

func (r *recorder) start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return false
	}
	r.recording = true
	r.pcm = r.pcm[:0]
	return true
}

// append stores a captured frame. Frames arriving outside a recording are
// dropped.
func (r *recorder) append(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return
	}
	r.pcm = append(r.pcm, frame...)
}

func (r *recorder) stop() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return nil, false
	}
	r.recording = false
	pcm := r.pcm
	r.pcm = nil
	return pcm, true
}

func (r *recorder) isRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}
