// Package router selects, for each request, the best available provider for
// the requested capability and transparently fails over to the next
// candidate when one fails.
package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/openjournal/dispatch/internal/circuitbreaker"
	"github.com/openjournal/dispatch/internal/provider"
)

const tracerName = "github.com/openjournal/dispatch/internal/router"

// Dispatcher routes capability-tagged requests across the configured
// providers. Candidates are tried in registration order through their
// circuit breakers; the first success wins.
type Dispatcher struct {
	logger   *zap.Logger
	tracer   trace.Tracer
	breakers *circuitbreaker.Registry

	mu          sync.RWMutex
	descriptors []provider.Descriptor
	clients     map[string]provider.Client

	counters sync.Map // provider id -> *providerCounters
}

// providerCounters holds per-provider dispatch totals.
type providerCounters struct {
	attempts atomic.Int64
	errors   atomic.Int64
}

// New creates a dispatcher. The breaker registry owns one lazily created
// circuit breaker per provider id.
func New(breakers *circuitbreaker.Registry, logger *zap.Logger) *Dispatcher {
	if breakers == nil {
		breakers = circuitbreaker.NewRegistry(nil, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		breakers: breakers,
		clients:  make(map[string]provider.Client),
	}
}

// SetProviders replaces the provider set. Called at startup and again
// whenever configuration changes; no restart is required. Breakers for
// providers that disappeared are dropped, surviving providers keep their
// breaker state.
func (d *Dispatcher) SetProviders(descriptors []provider.Descriptor, clients map[string]provider.Client) {
	d.mu.Lock()
	old := d.descriptors
	d.descriptors = descriptors
	d.clients = clients
	d.mu.Unlock()

	keep := make(map[string]bool, len(descriptors))
	for _, desc := range descriptors {
		keep[desc.ID] = true
	}
	for _, desc := range old {
		if !keep[desc.ID] {
			d.breakers.Remove(desc.ID)
			d.counters.Delete(desc.ID)
		}
	}

	d.logger.Info("provider set updated",
		zap.Int("providers", len(descriptors)),
	)
}

// candidate pairs a descriptor with its client.
type candidate struct {
	desc   provider.Descriptor
	client provider.Client
}

// candidates builds the ordered candidate list for a capability: enabled
// descriptors carrying the tag, in registration order.
func (d *Dispatcher) candidates(capability provider.Capability) []candidate {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []candidate
	for _, desc := range d.descriptors {
		if !desc.Supports(capability) {
			continue
		}
		client, ok := d.clients[desc.ID]
		if !ok {
			continue
		}
		out = append(out, candidate{desc: desc, client: client})
	}
	return out
}

// Dispatch tries each eligible provider in order until one succeeds.
//
// The result contract is deliberate: (resp, nil) on success, (nil, nil) both
// when no provider is configured for the capability and when every candidate
// failed, so callers degrade to a "no result" state instead of branching on
// error types. The only non-nil error is the context error after external
// cancellation, which ends the whole dispatch rather than moving to the next
// candidate.
func (d *Dispatcher) Dispatch(ctx context.Context, capability provider.Capability, req *provider.Request) (*provider.Response, error) {
	start := time.Now()
	requestID := uuid.NewString()

	ctx, span := d.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("dispatch.capability", capability.String()),
			attribute.String("dispatch.request_id", requestID),
		),
	)
	defer span.End()

	log := d.logger.With(
		zap.String("request_id", requestID),
		zap.String("capability", capability.String()),
	)

	cands := d.candidates(capability)
	if len(cands) == 0 {
		log.Warn("no provider available for capability")
		RecordDispatch(capability.String(), "no_provider", time.Since(start))
		return nil, nil
	}

	var lastErr error
	for _, cand := range cands {
		resp, err := d.attempt(ctx, span, log, cand, req)
		if err == nil {
			RecordDispatch(capability.String(), "success", time.Since(start))
			return resp, nil
		}
		lastErr = err

		// Cancellation ends the whole dispatch, not just this attempt.
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Info("dispatch cancelled",
				zap.String("provider", cand.desc.ID),
				zap.Error(ctxErr),
			)
			RecordDispatch(capability.String(), "cancelled", time.Since(start))
			return nil, ctxErr
		}
	}

	log.Error("all providers failed for capability",
		zap.Int("candidates", len(cands)),
		zap.Error(lastErr),
	)
	RecordDispatch(capability.String(), "exhausted", time.Since(start))
	return nil, nil
}

// attempt invokes one candidate through its circuit breaker and logs the
// outcome. Individual candidate errors are consumed here; they never reach
// the Dispatch caller.
func (d *Dispatcher) attempt(
	ctx context.Context,
	span trace.Span,
	log *zap.Logger,
	cand candidate,
	req *provider.Request,
) (*provider.Response, error) {
	breaker := d.breakers.GetOrCreate(cand.desc.ID)
	counters := d.countersFor(cand.desc.ID)

	attemptStart := time.Now()
	counters.attempts.Add(1)

	var resp *provider.Response
	err := breaker.Execute(ctx, func() error {
		r, invokeErr := cand.client.Invoke(ctx, req)
		if invokeErr != nil {
			return invokeErr
		}
		resp = r
		return nil
	})

	duration := time.Since(attemptStart)
	span.AddEvent("attempt", trace.WithAttributes(
		attribute.String("provider", cand.desc.ID),
		attribute.Bool("success", err == nil),
		attribute.Int64("duration_ms", duration.Milliseconds()),
	))

	if err != nil {
		counters.errors.Add(1)
		RecordAttempt(cand.desc.ID, req.Capability.String(), "error")

		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			// Fast skip, no network round trip happened.
			log.Debug("provider skipped, circuit open",
				zap.String("provider", cand.desc.ID),
			)
			return nil, err
		}

		log.Warn("provider attempt failed",
			zap.String("provider", cand.desc.ID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	RecordAttempt(cand.desc.ID, req.Capability.String(), "success")

	if resp.Provider == "" {
		resp.Provider = cand.desc.ID
	}
	resp.Duration = duration

	log.Debug("provider attempt succeeded",
		zap.String("provider", cand.desc.ID),
		zap.Duration("duration", duration),
	)
	return resp, nil
}

// countersFor returns the dispatch counters for a provider id.
func (d *Dispatcher) countersFor(id string) *providerCounters {
	if value, ok := d.counters.Load(id); ok {
		return value.(*providerCounters)
	}
	actual, _ := d.counters.LoadOrStore(id, &providerCounters{})
	return actual.(*providerCounters)
}

// ProviderStats merges dispatch counters with breaker state for one
// provider, for the health display.
type ProviderStats struct {
	Attempts int64                `json:"attempts"`
	Errors   int64                `json:"errors"`
	Breaker  circuitbreaker.Stats `json:"breaker"`
}

// Stats returns per-provider call counters and breaker state for every
// currently configured provider.
func (d *Dispatcher) Stats() map[string]ProviderStats {
	d.mu.RLock()
	descriptors := d.descriptors
	d.mu.RUnlock()

	breakerStats := d.breakers.Stats()

	out := make(map[string]ProviderStats, len(descriptors))
	for _, desc := range descriptors {
		stats := ProviderStats{
			Breaker: breakerStats[desc.ID],
		}
		if value, ok := d.counters.Load(desc.ID); ok {
			counters := value.(*providerCounters)
			stats.Attempts = counters.attempts.Load()
			stats.Errors = counters.errors.Load()
		}
		out[desc.ID] = stats
	}
	return out
}
