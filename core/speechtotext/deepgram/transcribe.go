// Package deepgram transcribes finished recordings with the Deepgram live
// transcription websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/delphi-call/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultListenURL = "wss://api.deepgram.com/v1/listen"
	// audioFrameSize is how much audio goes into a single websocket message.
	audioFrameSize = 8 << 10
)

// ErrServiceError marks failures Deepgram reported on the socket. They end
// the transcription.
var ErrServiceError = errors.New("deepgram error")

type TranscriptionClient struct {
	apiKey    string
	listenURL string
	model     string
	language  string
	dialer    *websocket.Dialer
}

type ClientOption func(*TranscriptionClient)

func WithListenURL(listenURL string) ClientOption {
	return func(c *TranscriptionClient) {
		if listenURL != "" {
			c.listenURL = listenURL
		}
	}
}

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) {
		if language != "" {
			c.language = language
		}
	}
}

func NewTranscriptionClient(apiKey string, opts ...ClientOption) *TranscriptionClient {
	c := &TranscriptionClient{
		apiKey:    apiKey,
		listenURL: defaultListenURL,
		model:     "nova-3",
		language:  "en-US",
		dialer:    websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe streams a finished recording and returns the joined final
// transcript once Deepgram closed the stream.
func (c *TranscriptionClient) Transcribe(ctx context.Context, pcm []byte, encoding audio.EncodingInfo) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe recording", trace.WithAttributes(
		attribute.Int("audio.bytes", len(pcm)),
		attribute.Int("audio.sample_rate", encoding.SampleRate),
	))
	defer span.End()

	transcript, err := c.transcribe(ctx, pcm, encoding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return transcript, nil
}

func (c *TranscriptionClient) transcribe(ctx context.Context, pcm []byte, encoding audio.EncodingInfo) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("deepgram api key not found")
	}

	deepgramEncoding, err := convertEncoding(encoding)
	if err != nil {
		return "", fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := c.connect(ctx, *deepgramEncoding)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	result := make(chan readResult, 1)
	go func() {
		result <- readTranscript(conn)
	}()

	if err := sendRecording(conn, pcm); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}

	res := <-result
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return res.transcript, res.err
}

func (c *TranscriptionClient) connect(ctx context.Context, encoding encodingInfo) (*websocket.Conn, error) {
	listenURL, err := url.Parse(c.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}

	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", strconv.Itoa(encoding.Channels))
	queryParams.Set("model", c.model)
	queryParams.Set("language", c.language)
	queryParams.Set("smart_format", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := c.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

func sendRecording(conn *websocket.Conn, pcm []byte) error {
	for offset := 0; offset < len(pcm); offset += audioFrameSize {
		end := min(offset+audioFrameSize, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[offset:end]); err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

type readResult struct {
	transcript string
	err        error
}

// readTranscript collects final results until the stream metadata arrives or
// the socket closes normally.
func readTranscript(conn *websocket.Conn) readResult {
	var acc transcriptAccumulator
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return readResult{transcript: acc.String()}
			}
			return readResult{transcript: acc.String(), err: fmt.Errorf("failed to read deepgram message: %w", err)}
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		done, err := acc.process(msg)
		if errors.Is(err, ErrServiceError) {
			return readResult{transcript: acc.String(), err: err}
		}
		if err != nil {
			logger.Warn("failed to process deepgram message", "error", err)
			continue
		}
		if done {
			return readResult{transcript: acc.String()}
		}
	}
}

type transcriptAccumulator struct {
	segments []string
}

// process handles one text message and reports whether the stream is over.
func (a *transcriptAccumulator) process(msg []byte) (bool, error) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		return false, fmt.Errorf("failed to unmarshal deepgram message: %w", err)
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			return false, fmt.Errorf("failed to unmarshal deepgram results: %w", err)
		}
		if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
			return false, nil
		}
		if transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript); transcript != "" {
			a.segments = append(a.segments, transcript)
		}
	case api.TypeMetadataResponse:
		return true, nil
	case "Error":
		var errResp struct {
			Description string `json:"description"`
			Message     string `json:"message"`
		}
		_ = json.Unmarshal(msg, &errResp)
		return false, fmt.Errorf("%w: %s", ErrServiceError, strings.TrimSpace(errResp.Description+" "+errResp.Message))
	}
	return false, nil
}

func (a *transcriptAccumulator) String() string {
	return strings.Join(a.segments, " ")
}
