// Package ratelimit provides the process-wide admission gate for outbound
// provider calls. One limiter instance is shared by every provider client;
// it throttles aggregate traffic against fixed minute and day quotas,
// queuing excess calls instead of rejecting them.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default limiter configuration constants.
const (
	// DefaultMinuteWindow is the default duration of the minute window.
	DefaultMinuteWindow = time.Minute

	// DefaultDayWindow is the default duration of the day window.
	DefaultDayWindow = 24 * time.Hour

	// DefaultInterCallDelay is the default pause between consecutive
	// dequeued calls.
	DefaultInterCallDelay = 100 * time.Millisecond
)

// ErrClosed is returned by Execute after the limiter has been shut down.
var ErrClosed = errors.New("rate limiter closed")

// Config holds configuration for the admission limiter.
type Config struct {
	// RequestsPerMinute is the quota for the minute window. Zero means
	// the minute window is not enforced.
	RequestsPerMinute int

	// RequestsPerDay is the quota for the day window. Zero means the day
	// window is not enforced.
	RequestsPerDay int

	// MinuteWindow overrides the minute window duration. Tests shrink it.
	MinuteWindow time.Duration

	// DayWindow overrides the day window duration. Tests shrink it.
	DayWindow time.Duration

	// InterCallDelay is the fixed pause observed between consecutive
	// dequeued calls.
	InterCallDelay time.Duration
}

// Validate validates the configuration, filling defaults.
func (c *Config) Validate() error {
	if c.RequestsPerMinute < 0 {
		c.RequestsPerMinute = 0
	}
	if c.RequestsPerDay < 0 {
		c.RequestsPerDay = 0
	}
	if c.MinuteWindow <= 0 {
		c.MinuteWindow = DefaultMinuteWindow
	}
	if c.DayWindow <= 0 {
		c.DayWindow = DefaultDayWindow
	}
	if c.InterCallDelay < 0 {
		c.InterCallDelay = 0
	}
	return nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerMinute: 10,
		RequestsPerDay:    1000,
		MinuteWindow:      DefaultMinuteWindow,
		DayWindow:         DefaultDayWindow,
		InterCallDelay:    DefaultInterCallDelay,
	}
}

// pendingCall is one queued unit of work. Calls are dequeued strictly in
// enqueue order and exactly one executes at a time.
type pendingCall struct {
	op        func() error
	done      chan error
	cancelled atomic.Bool
}

// AdmissionLimiter enforces the fixed ceiling on total outbound call volume.
// All mutation of the shared window counters and the queue happens on the
// single drain goroutine or under the mutex, so admission, window resets,
// and FIFO ordering are serialized by construction.
//
// The limiter is constructed explicitly and passed by handle to every
// caller; there is no ambient package-level instance.
type AdmissionLimiter struct {
	config *Config
	logger *zap.Logger
	pacer  *rate.Limiter

	mu          sync.Mutex
	queue       []*pendingCall
	minuteStart time.Time
	minuteCount int
	dayStart    time.Time
	dayCount    int
	closed      bool

	wake     chan struct{}
	drainCtx context.Context
	stop     context.CancelFunc
	doneCh   chan struct{}
}

// New creates an admission limiter and starts its drain loop.
func New(config *Config, logger *zap.Logger) *AdmissionLimiter {
	if config == nil {
		config = DefaultConfig()
	}
	config.Validate()

	if logger == nil {
		logger = zap.NewNop()
	}

	var pacer *rate.Limiter
	if config.InterCallDelay > 0 {
		pacer = rate.NewLimiter(rate.Every(config.InterCallDelay), 1)
	}

	now := time.Now()
	drainCtx, stop := context.WithCancel(context.Background())
	l := &AdmissionLimiter{
		config:      config,
		logger:      logger,
		pacer:       pacer,
		minuteStart: now,
		dayStart:    now,
		wake:        make(chan struct{}, 1),
		drainCtx:    drainCtx,
		stop:        stop,
		doneCh:      make(chan struct{}),
	}

	go l.drain()

	return l
}

// Execute enqueues op and returns once it has run, passing through its
// result untouched. A queued call is never dropped by the limiter itself;
// if the caller's context ends first, Execute returns the context error and
// the drain loop later skips the abandoned entry without consuming quota.
func (l *AdmissionLimiter) Execute(ctx context.Context, op func() error) error {
	call := &pendingCall{
		op:   op,
		done: make(chan error, 1),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, call)
	depth := len(l.queue)
	l.mu.Unlock()

	RecordQueueDepth(depth)

	select {
	case l.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-call.done:
		return err
	case <-ctx.Done():
		call.cancelled.Store(true)
		return ctx.Err()
	}
}

// Reason describes why a call would currently be delayed.
type Reason string

// Admission check outcomes.
const (
	ReasonMinuteQuota Reason = "minute quota exhausted"
	ReasonDayQuota    Reason = "day quota exhausted"
)

// CanMakeRequest reports whether a call issued now would be admitted
// immediately. It is a pure pre-check: no counter moves and no window
// resets, expired windows are treated as empty.
func (l *AdmissionLimiter) CanMakeRequest() (bool, Reason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	minuteCount := l.minuteCount
	if now.Sub(l.minuteStart) >= l.config.MinuteWindow {
		minuteCount = 0
	}
	dayCount := l.dayCount
	if now.Sub(l.dayStart) >= l.config.DayWindow {
		dayCount = 0
	}

	if l.config.RequestsPerMinute > 0 && minuteCount >= l.config.RequestsPerMinute {
		return false, ReasonMinuteQuota
	}
	if l.config.RequestsPerDay > 0 && dayCount >= l.config.RequestsPerDay {
		return false, ReasonDayQuota
	}
	return true, ""
}

// Reset zeroes both windows and their counters. Test hook; production code
// never resets counters except at window boundaries.
func (l *AdmissionLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.minuteStart = now
	l.minuteCount = 0
	l.dayStart = now
	l.dayCount = 0
}

// Close stops the drain loop. Queued calls that have not started receive
// ErrClosed.
func (l *AdmissionLimiter) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	pending := l.queue
	l.queue = nil
	l.mu.Unlock()

	l.stop()
	<-l.doneCh

	for _, call := range pending {
		call.done <- ErrClosed
	}
}

// Stats holds a snapshot of the limiter state for the health surface.
type Stats struct {
	QueueDepth        int       `json:"queue_depth"`
	MinuteCount       int       `json:"minute_count"`
	MinuteWindowStart time.Time `json:"minute_window_start"`
	DayCount          int       `json:"day_count"`
	DayWindowStart    time.Time `json:"day_window_start"`
}

// Stats returns a snapshot of the limiter state.
func (l *AdmissionLimiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		QueueDepth:        len(l.queue),
		MinuteCount:       l.minuteCount,
		MinuteWindowStart: l.minuteStart,
		DayCount:          l.dayCount,
		DayWindowStart:    l.dayStart,
	}
}

// drain is the single loop that owns queue consumption. One queue, one
// loop: FIFO ordering and absence of starvation are structural.
func (l *AdmissionLimiter) drain() {
	defer close(l.doneCh)

	for {
		call, ok := l.next()
		if !ok {
			return
		}
		if call == nil {
			// Woken with an empty queue; wait for work.
			select {
			case <-l.wake:
			case <-l.drainCtx.Done():
				return
			}
			continue
		}

		if call.cancelled.Load() {
			continue
		}

		if !l.waitAdmission(call) {
			// Shutdown with a call already popped from the queue: release
			// its caller, Close only covers calls still queued.
			call.done <- ErrClosed
			return
		}

		if call.cancelled.Load() {
			continue
		}

		l.admit()
		err := call.op()
		call.done <- err

		if l.pacer != nil {
			if err := l.pacer.Wait(l.drainCtx); err != nil {
				return
			}
		}
	}
}

// next pops the head of the queue. The second return is false once the
// limiter is shutting down.
func (l *AdmissionLimiter) next() (*pendingCall, bool) {
	select {
	case <-l.drainCtx.Done():
		return nil, false
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil, true
	}
	call := l.queue[0]
	l.queue = l.queue[1:]
	RecordQueueDepth(len(l.queue))
	return call, true
}

// waitAdmission blocks until the head call is admissible, sleeping until the
// nearer window reset and rechecking. Returns false on shutdown.
func (l *AdmissionLimiter) waitAdmission(call *pendingCall) bool {
	for {
		wait := l.admissionDelay()
		if wait <= 0 {
			return true
		}

		RecordDelayed()
		l.logger.Debug("call over quota, delaying",
			zap.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-l.drainCtx.Done():
			timer.Stop()
			return false
		}

		if call.cancelled.Load() {
			return true
		}
	}
}

// admissionDelay resets any expired window and returns how long the head
// call must wait, or zero when it is admissible now. Counts reset to exactly
// zero only when the current time crosses a window boundary.
func (l *AdmissionLimiter) admissionDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.minuteStart) >= l.config.MinuteWindow {
		l.minuteStart = now
		l.minuteCount = 0
	}
	if now.Sub(l.dayStart) >= l.config.DayWindow {
		l.dayStart = now
		l.dayCount = 0
	}

	var wait time.Duration
	if l.config.RequestsPerMinute > 0 && l.minuteCount >= l.config.RequestsPerMinute {
		wait = l.minuteStart.Add(l.config.MinuteWindow).Sub(now)
	}
	if l.config.RequestsPerDay > 0 && l.dayCount >= l.config.RequestsPerDay {
		dayWait := l.dayStart.Add(l.config.DayWindow).Sub(now)
		if wait == 0 || dayWait < wait {
			wait = dayWait
		}
	}
	return wait
}

// admit consumes one unit of both quotas. The counters move regardless of
// whether the operation itself later succeeds or fails.
func (l *AdmissionLimiter) admit() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.minuteCount++
	l.dayCount++
	RecordAdmitted()
	RecordWindowCounts(l.minuteCount, l.dayCount)
}
