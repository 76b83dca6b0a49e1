// Package proxy exposes the Delphi call API on local routes so browser or
// other thin clients never see the API key.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/delphi-call/core/delphi"
	"github.com/koscakluka/delphi-call/core/events"
	"github.com/koscakluka/delphi-call/core/eventstream"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	errConfigMissing   = "API key or base URL not found"
	errUpstreamFailure = "Failed to connect to Delphi API"
	// maxRequestBody bounds request bodies; recorded clips are the largest.
	maxRequestBody = 32 << 20
)

type Upstream interface {
	StartCall(ctx context.Context) (*delphi.Call, error)
	EndCall(ctx context.Context, callID string) error
	Respond(ctx context.Context, req delphi.RespondRequest) (io.ReadCloser, error)
	CloneDetails(ctx context.Context) (json.RawMessage, error)
}

type Server struct {
	upstream Upstream
	mux      *http.ServeMux
}

func NewServer(upstream Upstream) *Server {
	s := &Server{upstream: upstream, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /api/call/start", s.handleStartCall)
	s.mux.HandleFunc("POST /api/call/end", s.handleEndCall)
	s.mux.HandleFunc("GET /api/call/text", s.handleCallText)
	s.mux.HandleFunc("POST /api/call/audio", s.handleCallAudio)
	s.mux.HandleFunc("POST /api/respond", s.handleRespond)
	s.mux.HandleFunc("GET /api/clone", s.handleClone)
	s.mux.HandleFunc("GET /api/events/schema", s.handleEventSchema)

	return s
}

// Handler returns the instrumented route mux.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.mux, "delphi-proxy")
}

type startCallResponse struct {
	CallID        string `json:"call_id"`
	GreetingAudio string `json:"greeting_audio"`
}

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	call, err := s.upstream.StartCall(r.Context())
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, startCallResponse{CallID: call.ID, GreetingAudio: call.GreetingAudio})
}

type endCallRequest struct {
	CallID string `json:"call_id"`
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	var req endCallRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CallID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}

	if err := s.upstream.EndCall(r.Context(), req.CallID); err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleCallText(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	s.streamReply(w, r, delphi.RespondRequest{
		CallID: query.Get("call_id"),
		Text:   query.Get("message"),
	})
}

type callAudioRequest struct {
	CallID string `json:"call_id"`
	Audio  string `json:"audio"`
}

func (s *Server) handleCallAudio(w http.ResponseWriter, r *http.Request) {
	var req callAudioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.streamReply(w, r, delphi.RespondRequest{CallID: req.CallID, Audio: req.Audio})
}

// streamReply re-frames the upstream reply one event per frame.
func (s *Server) streamReply(w http.ResponseWriter, r *http.Request, req delphi.RespondRequest) {
	if req.CallID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}

	body, err := s.upstream.Respond(r.Context(), req)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	defer body.Close()

	writer, err := eventstream.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for event, err := range eventstream.Read(r.Context(), body) {
		if err != nil {
			logger.WarnContext(r.Context(), "upstream reply stream failed", "error", err)
			return
		}
		if err := writer.Send(event); err != nil {
			logger.DebugContext(r.Context(), "client went away", "error", err)
			return
		}
	}
}

type respondRequest struct {
	CallID  string `json:"call_id"`
	Message string `json:"message"`
}

// handleRespond streams only the audio of the reply, as the bare base64
// payloads of its chunks.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CallID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}

	body, err := s.upstream.Respond(r.Context(), delphi.RespondRequest{CallID: req.CallID, Text: req.Message})
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	defer body.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "response writer does not support flushing")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for event, err := range eventstream.Read(r.Context(), body) {
		if err != nil {
			logger.WarnContext(r.Context(), "upstream reply stream failed", "error", err)
			return
		}
		chunk, ok := event.(events.StreamAudioChunk)
		if !ok {
			continue
		}
		if _, err := io.WriteString(w, chunk.Audio); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	details, err := s.upstream.CloneDetails(r.Context())
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleEventSchema(w http.ResponseWriter, _ *http.Request) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	writeJSON(w, http.StatusOK, reflector.Reflect(&events.WireEvent{}))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var configErr *delphi.ConfigError
	if errors.As(err, &configErr) {
		writeError(w, http.StatusInternalServerError, errConfigMissing)
		return
	}

	status := http.StatusBadGateway
	var transportErr *delphi.TransportError
	if errors.As(err, &transportErr) && transportErr.Status != 0 {
		status = transportErr.Status
	}
	logger.WarnContext(r.Context(), "upstream request failed", "status", status, "error", err)
	writeError(w, status, errUpstreamFailure)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response", "error", err)
	}
}
