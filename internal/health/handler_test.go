package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjournal/dispatch/internal/circuitbreaker"
	"github.com/openjournal/dispatch/internal/ratelimit"
	"github.com/openjournal/dispatch/internal/router"
)

func statsWith(states map[string]circuitbreaker.State) ProviderStatsFunc {
	return func() map[string]router.ProviderStats {
		out := make(map[string]router.ProviderStats, len(states))
		for id, state := range states {
			out[id] = router.ProviderStats{
				Attempts: 10,
				Errors:   2,
				Breaker:  circuitbreaker.Stats{State: state},
			}
		}
		return out
	}
}

func emptyLimiterStats() ratelimit.Stats {
	return ratelimit.Stats{}
}

func serve(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, statsWith(nil), emptyLimiterStats)

	rec := serve(t, h, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)

	var status LivenessStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
}

func TestReadyz_Ready(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, statsWith(map[string]circuitbreaker.State{
		"alpha": circuitbreaker.StateClosed,
		"beta":  circuitbreaker.StateOpen,
	}), emptyLimiterStats)

	rec := serve(t, h, "/readyz")

	require.Equal(t, http.StatusOK, rec.Code)

	var status ReadinessStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, 2, status.Providers)
	assert.Equal(t, 1, status.Available)
}

func TestReadyz_NoProviders(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, statsWith(nil), emptyLimiterStats)

	rec := serve(t, h, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyz_AllBreakersOpen(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil, statsWith(map[string]circuitbreaker.State{
		"alpha": circuitbreaker.StateOpen,
		"beta":  circuitbreaker.StateOpen,
	}), emptyLimiterStats)

	rec := serve(t, h, "/readyz")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status ReadinessStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unavailable", status.Status)
	assert.Zero(t, status.Available)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	limiterStats := func() ratelimit.Stats {
		return ratelimit.Stats{QueueDepth: 3, MinuteCount: 7, DayCount: 42}
	}
	h := NewHandler(nil, statsWith(map[string]circuitbreaker.State{
		"alpha": circuitbreaker.StateHalfOpen,
	}), limiterStats)

	rec := serve(t, h, "/status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status DispatchStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 3, status.RateLimiter.QueueDepth)
	assert.Equal(t, int64(10), status.Providers["alpha"].Attempts)

	// Breaker state renders as a string in health payloads.
	assert.Contains(t, rec.Body.String(), `"half-open"`)
}
