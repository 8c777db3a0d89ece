package provider

import (
	"context"
	"time"
)

// Client is implemented once per provider. A client translates a generic
// capability-tagged request into the provider's wire format, performs the
// call, and returns either a response or an error from the normalized
// taxonomy (AuthenticationError, RateLimitError, TransportError,
// UnsupportedCapabilityError). Raw transport errors must not escape Invoke.
type Client interface {
	// Invoke performs a single logical call against the provider. The
	// context carries the external cancellation signal; cancelling aborts
	// the in-flight network operation.
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// Attachment is a binary payload accompanying a request, such as an image
// for vision analysis.
type Attachment struct {
	// MIMEType describes the attachment content, e.g. "image/jpeg".
	MIMEType string

	// Data is the raw attachment bytes.
	Data []byte
}

// Request is the generic capability-tagged request unit handed to a client.
// Only the fields relevant to the capability are populated.
type Request struct {
	// Capability selects the operation the caller wants performed.
	Capability Capability

	// Prompt is the textual input: a completion prompt, a vision question,
	// an image generation description, or a search query.
	Prompt string

	// Attachments carries binary inputs for vision and audio requests.
	Attachments []Attachment

	// Options holds provider-agnostic tuning knobs (model hints, sizes).
	Options map[string]string
}

// Usage reports token or unit consumption for one provider call.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Response is the generic result of one provider call.
type Response struct {
	// Provider is the id of the provider that served the request.
	Provider string `json:"provider"`

	// Capability echoes the requested capability.
	Capability Capability `json:"capability"`

	// Text is the textual result for text, vision, and search capabilities.
	Text string `json:"text,omitempty"`

	// Data is the binary result for image generation and audio capabilities.
	Data []byte `json:"data,omitempty"`

	// Model names the concrete model that produced the result, when known.
	Model string `json:"model,omitempty"`

	// Usage reports unit consumption, when the provider exposes it.
	Usage Usage `json:"usage,omitzero"`

	// Duration is the wall-clock time of the successful attempt.
	Duration time.Duration `json:"-"`
}
