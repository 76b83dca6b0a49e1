package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/delphi-call/core/audio"
)

type fakeListenServer struct {
	mu       sync.Mutex
	received []byte
	query    string
	auth     string

	replies []string
	// closeWithMetadata ends the stream with a Metadata message instead of a
	// close frame.
	closeWithMetadata bool
}

func (f *fakeListenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	f.mu.Lock()
	f.query = r.URL.RawQuery
	f.auth = r.Header.Get("Authorization")
	f.mu.Unlock()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.BinaryMessage {
			f.mu.Lock()
			f.received = append(f.received, msg...)
			f.mu.Unlock()
			continue
		}

		var control struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &control); err == nil && control.Type == "CloseStream" {
			break
		}
	}

	for _, reply := range f.replies {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
	if f.closeWithMetadata {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Metadata"}`))
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func result(transcript string, isFinal bool) string {
	return `{"type":"Results","is_final":` + map[bool]string{true: "true", false: "false"}[isFinal] +
		`,"channel":{"alternatives":[{"transcript":"` + transcript + `"}]}}`
}

func newTestTranscriber(t *testing.T, server *fakeListenServer) *TranscriptionClient {
	t.Helper()
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)

	return NewTranscriptionClient("dg-key", WithListenURL("ws"+strings.TrimPrefix(httpServer.URL, "http")))
}

func TestTranscribeJoinsFinalResults(t *testing.T) {
	for _, closeWithMetadata := range []bool{false, true} {
		server := &fakeListenServer{
			replies: []string{
				result("hel", false),
				result("hello", true),
				result("", true),
				result(" there ", true),
			},
			closeWithMetadata: closeWithMetadata,
		}
		client := newTestTranscriber(t, server)

		pcm := make([]byte, audioFrameSize*2+10)
		for i := range pcm {
			pcm[i] = byte(i)
		}
		transcript, err := client.Transcribe(context.Background(), pcm, audio.CaptureEncodingInfo())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if transcript != "hello there" {
			t.Fatalf("expected transcript %q, got %q", "hello there", transcript)
		}

		server.mu.Lock()
		if string(server.received) != string(pcm) {
			t.Fatalf("expected server to receive the full recording, got %d bytes", len(server.received))
		}
		if !strings.Contains(server.query, "sample_rate=16000") || !strings.Contains(server.query, "encoding=linear16") {
			t.Fatalf("unexpected query %q", server.query)
		}
		if server.auth != "Token dg-key" {
			t.Fatalf("unexpected authorization %q", server.auth)
		}
		server.mu.Unlock()
	}
}

func TestTranscribeFailsOnDeepgramError(t *testing.T) {
	server := &fakeListenServer{
		replies: []string{
			result("hello", true),
			`{"type":"Error","description":"bad audio","message":"could not decode"}`,
		},
	}
	client := newTestTranscriber(t, server)

	_, err := client.Transcribe(context.Background(), []byte{0, 0, 1, 0}, audio.CaptureEncodingInfo())
	if !errors.Is(err, ErrServiceError) {
		t.Fatalf("expected ErrServiceError, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad audio could not decode") {
		t.Fatalf("expected deepgram description in error, got %v", err)
	}
}

func TestTranscribeRejectsUnsupportedEncoding(t *testing.T) {
	client := NewTranscriptionClient("dg-key")

	if _, err := client.Transcribe(context.Background(), []byte{0, 0}, audio.PlaybackEncodingInfo()); err == nil {
		t.Fatalf("expected error for 44100 Hz audio")
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	client := NewTranscriptionClient("")

	if _, err := client.Transcribe(context.Background(), []byte{0, 0}, audio.CaptureEncodingInfo()); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestAccumulatorIgnoresInterimResults(t *testing.T) {
	var acc transcriptAccumulator
	for _, msg := range []string{result("a", false), result("b", true), `{"type":"SpeechStarted"}`} {
		if done, err := acc.process([]byte(msg)); err != nil || done {
			t.Fatalf("unexpected result done=%v err=%v", done, err)
		}
	}
	if done, _ := acc.process([]byte(`{"type":"Metadata"}`)); !done {
		t.Fatalf("expected metadata to end the stream")
	}
	if got := acc.String(); got != "b" {
		t.Fatalf("expected transcript b, got %q", got)
	}
	if _, err := acc.process([]byte("{")); err == nil {
		t.Fatalf("expected error for malformed message")
	}
}
