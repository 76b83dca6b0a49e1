package eventstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/koscakluka/delphi-call/core/events"
)

// Writer frames stream events as `data: <json>\n\n` on an HTTP response.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewWriter sets the event-stream headers on w. It fails if w cannot flush.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &Writer{w: w, flusher: f}, nil
}

// Send writes a single frame and flushes it to the client.
func (sw *Writer) Send(event events.StreamEvent) error {
	b, err := json.Marshal(events.ToWire(event))
	if err != nil {
		return err
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", b); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}
