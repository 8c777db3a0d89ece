package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error conventions follow the rest of the project: sentinel errors for
// stable conditions checked with errors.Is, and structured types carrying
// context. Every structured type implements Error, Unwrap (when wrapping),
// and Is. Transport-level code normalizes raw errors into this taxonomy
// before they reach the circuit breaker; raw *url.Error and friends must
// never escape a Client.

// Common sentinel errors.
var (
	// ErrAuthentication marks credential failures (HTTP 401/403).
	// Never retried.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRateLimited marks a provider-side rate limit (HTTP 429).
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrTransport marks timeouts, connection failures, and malformed
	// responses. Retried with exponential backoff at the transport level.
	ErrTransport = errors.New("transport failure")

	// ErrUnsupportedCapability marks a request for a capability the
	// provider does not implement. Never retried.
	ErrUnsupportedCapability = errors.New("capability not supported")
)

// AuthenticationError indicates the provider rejected our credentials.
type AuthenticationError struct {
	Provider   string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: authentication failed (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("provider %s: authentication failed", e.Provider)
}

// Unwrap returns the underlying error.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *AuthenticationError) Is(target error) bool {
	if target == ErrAuthentication {
		return true
	}
	_, ok := target.(*AuthenticationError)
	return ok
}

// RateLimitError indicates the provider throttled the call. RetryAfter
// carries the server-provided delay, zero when the server supplied none.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Cause      error
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s: rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s: rate limited", e.Provider)
}

// Unwrap returns the underlying error.
func (e *RateLimitError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *RateLimitError) Is(target error) bool {
	if target == ErrRateLimited {
		return true
	}
	_, ok := target.(*RateLimitError)
	return ok
}

// TransportError indicates a timeout, connection failure, unexpected status,
// or malformed response.
type TransportError struct {
	Provider string
	Op       string
	Cause    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Cause)
	}
	return fmt.Sprintf("provider %s: %s failed", e.Provider, e.Op)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *TransportError) Is(target error) bool {
	if target == ErrTransport {
		return true
	}
	_, ok := target.(*TransportError)
	return ok
}

// UnsupportedCapabilityError indicates a provider was asked for a capability
// it lacks. Router filtering makes this unreachable in normal operation; if
// it occurs anyway it is an immediate, non-retryable failure for that
// candidate only.
type UnsupportedCapabilityError struct {
	Provider   string
	Capability Capability
}

// Error implements the error interface.
func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("provider %s: capability %s not supported", e.Provider, e.Capability)
}

// Is checks if the error matches the target.
func (e *UnsupportedCapabilityError) Is(target error) bool {
	if target == ErrUnsupportedCapability {
		return true
	}
	_, ok := target.(*UnsupportedCapabilityError)
	return ok
}

// Retryable reports whether the transport layer may retry after err.
// Authentication failures, unsupported capabilities, and caller
// cancellation are final; everything else in the taxonomy may be retried.
// A deadline error is retryable here: the per-attempt timeout is an
// ordinary transport failure, and an expired caller deadline never reaches
// this check because the retry loop consults the parent context first.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrAuthentication):
		return false
	case errors.Is(err, ErrUnsupportedCapability):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
