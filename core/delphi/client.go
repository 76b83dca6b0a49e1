// Package delphi is a client for the Delphi conversational voice API.
package delphi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	apiKeyHeader = "x-api-key"
	// maxErrorBody bounds how much of a failed response is kept for errors.
	maxErrorBody = 4 << 10
)

type Client struct {
	apiKey  string
	baseURI string
	scheme  string

	httpClient *http.Client
}

type ClientOption func(*Client)

// WithScheme overrides the default "https" scheme, mostly for tests and local
// proxies.
func WithScheme(scheme string) ClientOption {
	return func(c *Client) {
		if scheme != "" {
			c.scheme = scheme
		}
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a client for the API at baseURI (a host, without scheme).
// Missing credentials are not reported here but by every request.
func NewClient(apiKey, baseURI string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURI: strings.TrimSuffix(baseURI, "/"),
		scheme:  "https",
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call is a started upstream call.
type Call struct {
	ID string
	// GreetingAudio is a single base64 PCM16 clip to play on start.
	GreetingAudio string
}

type startCallResponse struct {
	ID            string `json:"call_id"`
	GreetingAudio string `json:"greeting_audio"`
}

func (c *Client) StartCall(ctx context.Context) (*Call, error) {
	ctx, span := tracer.Start(ctx, "start call")
	defer span.End()

	resp, err := c.do(ctx, "start call", http.MethodPost, "/interaction/call/start", nil)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	var body startCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		err = &TransportError{Op: "start call", Status: resp.StatusCode, Err: fmt.Errorf("error decoding response: %w", err)}
		recordError(span, err)
		return nil, err
	}

	var call Call
	if err := copier.Copy(&call, &body); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("error copying start call response: %w", err)
	}
	span.SetAttributes(attribute.String("call.id", call.ID))

	return &call, nil
}

type endCallRequest struct {
	CallID string `json:"call_id"`
}

func (c *Client) EndCall(ctx context.Context, callID string) error {
	ctx, span := tracer.Start(ctx, "end call", trace.WithAttributes(attribute.String("call.id", callID)))
	defer span.End()

	resp, err := c.do(ctx, "end call", http.MethodPost, "/interaction/call/end", endCallRequest{CallID: callID})
	if err != nil {
		recordError(span, err)
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// RespondRequest is one outgoing message. Exactly one of Text and Audio is
// expected; Audio is the base64 encoded recorded clip.
type RespondRequest struct {
	CallID string `json:"call_id"`
	Text   string `json:"text,omitempty"`
	Audio  string `json:"audio,omitempty"`
}

// Respond sends a message and returns the server-sent-event stream of the
// reply. The caller owns the returned body; cancelling ctx aborts it.
func (c *Client) Respond(ctx context.Context, req RespondRequest) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "respond", trace.WithAttributes(
		attribute.String("call.id", req.CallID),
		attribute.Bool("request.audio", req.Audio != ""),
	))
	defer span.End()

	if req.Text == "" && req.Audio == "" {
		err := fmt.Errorf("respond request needs text or audio")
		recordError(span, err)
		return nil, err
	}

	resp, err := c.do(ctx, "respond", http.MethodPost, "/interaction/call/respond", req,
		func(r *http.Request) { r.Header.Set("Accept", "text/event-stream") })
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	return resp.Body, nil
}

// CloneDetails returns the raw description of the clone behind the API key.
func (c *Client) CloneDetails(ctx context.Context) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "clone details")
	defer span.End()

	resp, err := c.do(ctx, "clone details", http.MethodGet, "/clone", nil)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	var details json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		err = &TransportError{Op: "clone details", Status: resp.StatusCode, Err: fmt.Errorf("error decoding response: %w", err)}
		recordError(span, err)
		return nil, err
	}
	return details, nil
}

func (c *Client) checkConfig() error {
	var missing []string
	if c.apiKey == "" {
		missing = append(missing, "api key")
	}
	if c.baseURI == "" {
		missing = append(missing, "base uri")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, mutators ...func(*http.Request)) (*http.Response, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshalling %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	url := c.scheme + "://" + c.baseURI + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("error creating %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)
	for _, mutate := range mutators {
		mutate(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.WarnContext(ctx, "upstream request failed",
			"op", op,
			"status", resp.StatusCode,
			"body", string(errorBody))
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(errorBody))}
	}

	return resp, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
