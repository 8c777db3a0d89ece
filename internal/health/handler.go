// Package health exposes liveness, readiness, and dispatch status endpoints
// for the health display: per-provider call counters, breaker states, and
// the admission limiter's window and queue snapshot.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openjournal/dispatch/internal/circuitbreaker"
	"github.com/openjournal/dispatch/internal/ratelimit"
	"github.com/openjournal/dispatch/internal/router"
)

// ProviderStatsFunc supplies the current per-provider dispatch statistics.
type ProviderStatsFunc func() map[string]router.ProviderStats

// LimiterStatsFunc supplies the current admission limiter snapshot.
type LimiterStatsFunc func() ratelimit.Stats

// Handler serves the health endpoints.
type Handler struct {
	logger        *zap.Logger
	startTime     time.Time
	providerStats ProviderStatsFunc
	limiterStats  LimiterStatsFunc
}

// NewHandler creates a health handler.
func NewHandler(logger *zap.Logger, providerStats ProviderStatsFunc, limiterStats LimiterStatsFunc) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:        logger,
		startTime:     time.Now(),
		providerStats: providerStats,
		limiterStats:  limiterStats,
	}
}

// Register attaches the health endpoints to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.HandleFunc("GET /status", h.Status)
}

// LivenessStatus is the liveness payload.
type LivenessStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// Healthz reports process liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, LivenessStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// ReadinessStatus is the readiness payload.
type ReadinessStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Providers int       `json:"providers"`
	Available int       `json:"available"`
}

// Readyz reports whether the dispatcher can currently serve anything: at
// least one provider configured and not every breaker open.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	stats := h.providerStats()

	available := 0
	for _, s := range stats {
		if s.Breaker.State != circuitbreaker.StateOpen {
			available++
		}
	}

	status := ReadinessStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Providers: len(stats),
		Available: available,
	}

	code := http.StatusOK
	if len(stats) == 0 || available == 0 {
		status.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	h.writeJSON(w, code, status)
}

// DispatchStatus is the full status payload.
type DispatchStatus struct {
	Status      string                          `json:"status"`
	Timestamp   time.Time                       `json:"timestamp"`
	Uptime      string                          `json:"uptime"`
	Providers   map[string]router.ProviderStats `json:"providers"`
	RateLimiter ratelimit.Stats                 `json:"rate_limiter"`
}

// Status reports the full dispatch state for the health display.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, DispatchStatus{
		Status:      "ok",
		Timestamp:   time.Now(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Providers:   h.providerStats(),
		RateLimiter: h.limiterStats(),
	})
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("failed to encode health response", zap.Error(err))
	}
}
