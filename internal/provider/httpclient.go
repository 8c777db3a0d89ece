package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openjournal/dispatch/internal/retry"
)

// DefaultHTTPTimeout bounds a single network attempt when the descriptor
// does not set its own timeout.
const DefaultHTTPTimeout = 30 * time.Second

// AdmissionGate is the admission-control surface the client throttles
// through. Every attempt, including retried ones, passes the gate, so the
// gate sees aggregate traffic regardless of which provider serves a request.
type AdmissionGate interface {
	Execute(ctx context.Context, op func() error) error
}

// capabilityPaths maps each capability to the endpoint path of the generic
// HTTP+JSON wire contract.
var capabilityPaths = map[Capability]string{
	CapabilityText:     "/v1/text/completions",
	CapabilityVision:   "/v1/vision/analyses",
	CapabilityImageGen: "/v1/images/generations",
	CapabilitySearch:   "/v1/search/queries",
	CapabilityAudio:    "/v1/audio/transcriptions",
}

// HTTPClient is the generic HTTP+JSON provider binding. Retry runs inside
// the circuit breaker (the breaker wraps Invoke as a whole) and admission
// control runs inside each retry attempt, so quota is consumed per network
// call and retried attempts count toward the breaker's accounting.
type HTTPClient struct {
	desc       Descriptor
	gate       AdmissionGate
	retryCfg   *retry.Config
	httpClient *http.Client
	logger     *zap.Logger
}

// HTTPClientOption is a functional option for configuring the client.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithRetryConfig sets the transport retry configuration.
func WithRetryConfig(cfg *retry.Config) HTTPClientOption {
	return func(h *HTTPClient) {
		h.retryCfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) HTTPClientOption {
	return func(h *HTTPClient) {
		h.logger = logger
	}
}

// NewHTTPClient creates a client for one provider descriptor. gate may be
// nil, in which case calls bypass admission control (tests only).
func NewHTTPClient(desc Descriptor, gate AdmissionGate, opts ...HTTPClientOption) *HTTPClient {
	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	h := &HTTPClient{
		desc:       desc,
		gate:       gate,
		retryCfg:   retry.DefaultConfig(),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// wireRequest is the generic JSON request body.
type wireRequest struct {
	Prompt      string            `json:"prompt,omitempty"`
	Attachments []wireAttachment  `json:"attachments,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}

// wireAttachment carries one binary input, base64 encoded by encoding/json.
type wireAttachment struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// wireResponse is the generic JSON response body.
type wireResponse struct {
	Text  string `json:"text,omitempty"`
	Data  []byte `json:"data,omitempty"`
	Model string `json:"model,omitempty"`
	Usage Usage  `json:"usage,omitzero"`
}

// Invoke implements Client.
func (h *HTTPClient) Invoke(ctx context.Context, req *Request) (*Response, error) {
	path, ok := capabilityPaths[req.Capability]
	if !ok || !h.desc.Capabilities.Has(req.Capability) {
		return nil, &UnsupportedCapabilityError{Provider: h.desc.ID, Capability: req.Capability}
	}

	body, err := json.Marshal(h.wireRequest(req))
	if err != nil {
		return nil, &TransportError{Provider: h.desc.ID, Op: "encode request", Cause: err}
	}

	var out wireResponse
	err = retry.Do(ctx, h.retryCfg, func(attemptCtx context.Context) error {
		call := func() error {
			return h.doRequest(attemptCtx, path, body, &out)
		}
		if h.gate == nil {
			return call()
		}
		attemptErr := h.gate.Execute(attemptCtx, call)
		// A queue wait that outlives the attempt deadline surfaces the raw
		// context error from the gate; normalize it so only cancellation
		// leaves the client unwrapped.
		if errors.Is(attemptErr, context.DeadlineExceeded) && !errors.Is(attemptErr, ErrTransport) {
			return &TransportError{Provider: h.desc.ID, Op: "admission wait", Cause: attemptErr}
		}
		return attemptErr
	}, &retry.Options{
		ShouldRetry: Retryable,
		RetryAfter:  retryAfterFrom,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			h.logger.Debug("retrying provider call",
				zap.String("provider", h.desc.ID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
		},
	})
	if err != nil {
		return nil, err
	}

	return &Response{
		Provider:   h.desc.ID,
		Capability: req.Capability,
		Text:       out.Text,
		Data:       out.Data,
		Model:      out.Model,
		Usage:      out.Usage,
	}, nil
}

// wireRequest converts a generic request to the wire shape.
func (h *HTTPClient) wireRequest(req *Request) wireRequest {
	wire := wireRequest{
		Prompt:  req.Prompt,
		Options: req.Options,
	}
	for _, att := range req.Attachments {
		wire.Attachments = append(wire.Attachments, wireAttachment{
			MIMEType: att.MIMEType,
			Data:     att.Data,
		})
	}
	return wire
}

// doRequest performs one HTTP attempt and normalizes the outcome into the
// error taxonomy. Raw transport errors never escape this function, except
// context cancellation which propagates as-is so the retry helper and the
// router can distinguish it from provider failures.
func (h *HTTPClient) doRequest(ctx context.Context, path string, body []byte, out *wireResponse) error {
	url := strings.TrimSuffix(h.desc.Credentials.BaseURL, "/") + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Provider: h.desc.ID, Op: "build request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.desc.Credentials.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.desc.Credentials.APIKey)
	}
	if h.desc.Credentials.OrgID != "" {
		httpReq.Header.Set("X-Org-ID", h.desc.Credentials.OrgID)
	}

	httpResp, err := h.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return &TransportError{Provider: h.desc.ID, Op: "http request", Cause: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return &AuthenticationError{Provider: h.desc.ID, StatusCode: httpResp.StatusCode}

	case httpResp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Provider:   h.desc.ID,
			RetryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After")),
		}

	case httpResp.StatusCode >= 400:
		return &TransportError{
			Provider: h.desc.ID,
			Op:       "http request",
			Cause:    fmt.Errorf("unexpected status %d", httpResp.StatusCode),
		}
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return &TransportError{Provider: h.desc.ID, Op: "decode response", Cause: err}
	}
	return nil
}

// retryAfterFrom extracts the server-provided delay from a rate limit error.
func retryAfterFrom(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}

// parseRetryAfter parses a Retry-After header value: either delay seconds
// or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
