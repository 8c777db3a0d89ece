// Package retry provides the transport-level retry helper with exponential
// backoff. It is composed inside each provider client call so that retried
// attempts count toward, not around, the circuit breaker's accounting.
package retry

import (
	"context"
	"time"
)

// Default retry configuration constants.
const (
	// DefaultMaxRetries is the default maximum number of retry attempts.
	DefaultMaxRetries = 3

	// DefaultInitialBackoff is the default initial backoff duration.
	// Attempt n waits initial * 2^n before the next try.
	DefaultInitialBackoff = time.Second

	// DefaultMaxBackoff is the default maximum backoff duration.
	DefaultMaxBackoff = 30 * time.Second

	// DefaultAttemptTimeout is the default per-attempt timeout.
	DefaultAttemptTimeout = 30 * time.Second

	// DefaultJitterFactor is the default jitter factor (10%).
	DefaultJitterFactor = 0.1
)

// Config contains retry configuration parameters.
type Config struct {
	// MaxRetries is the maximum number of retry attempts after the first try.
	MaxRetries int

	// AttemptTimeout bounds each individual attempt via context deadline.
	// Exceeding it aborts the attempt and counts as a failure.
	AttemptTimeout time.Duration

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration

	// JitterFactor adds randomness (0.0 to 1.0) to backoff durations.
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:     DefaultMaxRetries,
		AttemptTimeout: DefaultAttemptTimeout,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// GetMaxRetries returns the effective max retries.
func (c *Config) GetMaxRetries() int {
	if c == nil || c.MaxRetries < 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

// GetAttemptTimeout returns the effective per-attempt timeout.
func (c *Config) GetAttemptTimeout() time.Duration {
	if c == nil || c.AttemptTimeout <= 0 {
		return DefaultAttemptTimeout
	}
	return c.AttemptTimeout
}

// GetInitialBackoff returns the effective initial backoff.
func (c *Config) GetInitialBackoff() time.Duration {
	if c == nil || c.InitialBackoff <= 0 {
		return DefaultInitialBackoff
	}
	return c.InitialBackoff
}

// GetMaxBackoff returns the effective max backoff.
func (c *Config) GetMaxBackoff() time.Duration {
	if c == nil || c.MaxBackoff <= 0 {
		return DefaultMaxBackoff
	}
	return c.MaxBackoff
}

// GetJitterFactor returns the effective jitter factor.
func (c *Config) GetJitterFactor() float64 {
	if c == nil || c.JitterFactor < 0 {
		return DefaultJitterFactor
	}
	if c.JitterFactor > 1 {
		return 1
	}
	return c.JitterFactor
}

// RetryableFunc is one attempt of the guarded operation. The context passed
// in carries the per-attempt deadline derived from Config.AttemptTimeout.
type RetryableFunc func(ctx context.Context) error

// ShouldRetryFunc determines if an error should trigger a retry.
type ShouldRetryFunc func(error) bool

// RetryAfterFunc extracts a server-provided delay from an error. When it
// returns a positive duration, that delay replaces the exponential backoff
// before the next attempt (a throttled attempt still consumes a retry).
type RetryAfterFunc func(error) (time.Duration, bool)

// OnRetryFunc is called before each retry attempt.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Options contains optional retry behavior configuration.
type Options struct {
	// ShouldRetry determines if an error should trigger a retry.
	// If nil, all errors are retried.
	ShouldRetry ShouldRetryFunc

	// RetryAfter extracts a server-provided delay from an error.
	RetryAfter RetryAfterFunc

	// OnRetry is called before each retry attempt.
	OnRetry OnRetryFunc
}

// Do executes fn with retry logic. Exactly one of success (nil) or the last
// classified error is returned; errors are never swallowed. External
// cancellation aborts immediately: no further attempt is made once the
// parent context is done, and the context error is returned as-is.
func Do(ctx context.Context, cfg *Config, fn RetryableFunc, opts *Options) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	maxRetries := cfg.GetMaxRetries()
	backoff := NewExponentialBackoff(cfg.GetInitialBackoff(), cfg.GetMaxBackoff(), 2, cfg.GetJitterFactor())

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = runAttempt(ctx, cfg.GetAttemptTimeout(), fn)
		if lastErr == nil {
			return nil
		}

		// External cancellation ends the whole operation, even when the
		// attempt error itself would otherwise be retryable.
		if err := ctx.Err(); err != nil {
			return err
		}

		if opts != nil && opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			return lastErr
		}

		if attempt == maxRetries {
			break
		}

		wait := backoff.Next(attempt)
		if opts != nil && opts.RetryAfter != nil {
			if d, ok := opts.RetryAfter(lastErr); ok && d > 0 {
				wait = d
			}
		}

		if opts != nil && opts.OnRetry != nil {
			opts.OnRetry(attempt+1, lastErr, wait)
		}
		RecordRetry()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return lastErr
}

// runAttempt executes a single attempt bounded by the per-attempt timeout.
func runAttempt(ctx context.Context, timeout time.Duration, fn RetryableFunc) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
