package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and calls are allowed.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and calls are rejected.
	StateOpen

	// StateHalfOpen indicates the circuit is testing if the provider recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open. It is
// distinguishable from genuine provider errors so the router can skip the
// candidate immediately without waiting on a network round trip.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker isolates callers from a repeatedly failing provider.
//
// CLOSED invokes the operation directly; FailureThreshold consecutive
// failures open the circuit. OPEN rejects calls with ErrCircuitOpen until
// ResetTimeout has elapsed, checked lazily at call time, after which the
// breaker moves to HALF_OPEN. HALF_OPEN lets calls through; SuccessThreshold
// consecutive successes close the circuit, any failure reopens it.
//
// HALF_OPEN places no cap on concurrent probes. Several in-flight calls can
// all fail before the first reopen lands; the extra failures are no-ops.
type CircuitBreaker struct {
	name   string
	config *Config
	logger *zap.Logger

	mu    sync.RWMutex
	state State

	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time

	// Monotonic totals for the observability surface.
	totalAttempts  int64
	totalFailures  int64
	totalSuccesses int64
	totalRejected  int64
}

// New creates a new circuit breaker.
func New(name string, config *Config, logger *zap.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	config.Validate()

	if logger == nil {
		logger = zap.NewNop()
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		state:  StateClosed,
	}
}

// Execute runs fn with circuit breaker protection. When the circuit is open
// it fails immediately with ErrCircuitOpen without invoking fn. The breaker
// never retries internally and never alters the error fn returns.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	err := fn()

	// A caller-side cancellation says nothing about provider health, so it
	// moves no counters.
	if errors.Is(err, context.Canceled) {
		return err
	}

	if err != nil {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}

	return err
}

// Allow checks if a call is admitted. In the open state the reset timeout is
// evaluated lazily here: the first call arriving after ResetTimeout flips the
// breaker to half-open and is let through as a probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	allowed := true
	if cb.state == StateOpen {
		if time.Since(cb.openedAt) >= cb.config.ResetTimeout {
			cb.transitionTo(StateHalfOpen)
		} else {
			allowed = false
		}
	}

	cb.totalAttempts++
	if !allowed {
		cb.totalRejected++
	}
	RecordRequest(cb.name, allowed)

	return allowed
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalSuccesses++
	RecordSuccess(cb.name)

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures = 0

	case StateHalfOpen:
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	RecordFailure(cb.name)

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		// Any failure while probing reopens immediately, discarding
		// partial success progress.
		cb.transitionTo(StateOpen)
	}
}

// transitionTo moves the breaker to a new state. Caller must hold cb.mu.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	if oldState == newState {
		return
	}

	cb.state = newState
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	if newState == StateOpen {
		cb.openedAt = time.Now()
	}

	RecordStateChange(cb.name, oldState, newState)

	cb.logger.Info("circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)

	// Observers are notified synchronously, on actual transitions only.
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, oldState, newState)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset returns the circuit breaker to the closed state with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.openedAt = time.Time{}

	cb.logger.Info("circuit breaker reset",
		zap.String("name", cb.name),
	)
}

// Stats holds a snapshot of circuit breaker statistics.
type Stats struct {
	State                State     `json:"state"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	OpenedAt             time.Time `json:"opened_at,omitzero"`
	TotalAttempts        int64     `json:"total_attempts"`
	TotalFailures        int64     `json:"total_failures"`
	TotalSuccesses       int64     `json:"total_successes"`
	TotalRejected        int64     `json:"total_rejected"`
}

// Stats returns the current statistics of the circuit breaker.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return Stats{
		State:                cb.state,
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		OpenedAt:             cb.openedAt,
		TotalAttempts:        cb.totalAttempts,
		TotalFailures:        cb.totalFailures,
		TotalSuccesses:       cb.totalSuccesses,
		TotalRejected:        cb.totalRejected,
	}
}

// MarshalText implements encoding.TextMarshaler for State so health payloads
// render states as strings.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = StateClosed
	case "open":
		*s = StateOpen
	case "half-open":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown circuit breaker state: %q", text)
	}
	return nil
}
