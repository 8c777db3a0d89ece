package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjournal/dispatch/internal/circuitbreaker"
	"github.com/openjournal/dispatch/internal/provider"
)

// fakeClient is a scriptable provider.Client.
type fakeClient struct {
	mu     sync.Mutex
	calls  int
	invoke func(ctx context.Context, req *provider.Request) (*provider.Response, error)
}

func (f *fakeClient) Invoke(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.invoke(ctx, req)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func succeeding(text string) *fakeClient {
	return &fakeClient{invoke: func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		return &provider.Response{Text: text}, nil
	}}
}

func failing() *fakeClient {
	return &fakeClient{invoke: func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		return nil, assert.AnError
	}}
}

func desc(id string, enabled bool, caps ...provider.Capability) provider.Descriptor {
	return provider.Descriptor{
		ID:           id,
		Enabled:      enabled,
		Capabilities: provider.NewCapabilitySet(caps...),
	}
}

func newTestDispatcher(descriptors []provider.Descriptor, clients map[string]provider.Client) (*Dispatcher, *circuitbreaker.Registry) {
	breakers := circuitbreaker.NewRegistry(
		circuitbreaker.DefaultConfig().WithFailureThreshold(1).WithResetTimeout(time.Minute),
		nil,
	)
	d := New(breakers, nil)
	d.SetProviders(descriptors, clients)
	return d, breakers
}

func textRequest() *provider.Request {
	return &provider.Request{Capability: provider.CapabilityText, Prompt: "hello"}
}

func TestDispatch_FirstSuccessWins(t *testing.T) {
	t.Parallel()

	first := succeeding("from-first")
	second := succeeding("from-second")
	d, _ := newTestDispatcher(
		[]provider.Descriptor{
			desc("first", true, provider.CapabilityText),
			desc("second", true, provider.CapabilityText),
		},
		map[string]provider.Client{"first": first, "second": second},
	)

	resp, err := d.Dispatch(context.Background(), provider.CapabilityText, textRequest())

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "from-first", resp.Text)
	assert.Equal(t, "first", resp.Provider)
	assert.Equal(t, 1, first.callCount())
	assert.Equal(t, 0, second.callCount(), "later candidates are not tried after a success")
}

func TestDispatch_FailsOverToNextCandidate(t *testing.T) {
	t.Parallel()

	first := failing()
	second := succeeding("fallback")
	d, _ := newTestDispatcher(
		[]provider.Descriptor{
			desc("first", true, provider.CapabilityText),
			desc("second", true, provider.CapabilityText),
		},
		map[string]provider.Client{"first": first, "second": second},
	)

	resp, err := d.Dispatch(context.Background(), provider.CapabilityText, textRequest())

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "second", resp.Provider)
	assert.Equal(t, 1, first.callCount())
	assert.Equal(t, 1, second.callCount())
}

func TestDispatch_ExhaustionReturnsNilNil(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(
		[]provider.Descriptor{
			desc("first", true, provider.CapabilityText),
			desc("second", true, provider.CapabilityText),
		},
		map[string]provider.Client{"first": failing(), "second": failing()},
	)

	resp, err := d.Dispatch(context.Background(), provider.CapabilityText, textRequest())

	assert.Nil(t, resp)
	assert.NoError(t, err, "exhaustion is a no-result outcome, not an error")
}

func TestDispatch_NoProviderForCapability(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(
		[]provider.Descriptor{desc("text-only", true, provider.CapabilityText)},
		map[string]provider.Client{"text-only": succeeding("x")},
	)

	resp, err := d.Dispatch(context.Background(), provider.CapabilitySearch, &provider.Request{
		Capability: provider.CapabilitySearch,
	})

	assert.Nil(t, resp)
	assert.NoError(t, err)
}

func TestDispatch_DisabledProviderExcluded(t *testing.T) {
	t.Parallel()

	disabled := succeeding("disabled")
	enabled := succeeding("enabled")
	d, _ := newTestDispatcher(
		[]provider.Descriptor{
			desc("disabled", false, provider.CapabilityText),
			desc("enabled", true, provider.CapabilityText),
		},
		map[string]provider.Client{"disabled": disabled, "enabled": enabled},
	)

	resp, err := d.Dispatch(context.Background(), provider.CapabilityText, textRequest())

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "enabled", resp.Provider)
	assert.Equal(t, 0, disabled.callCount())
}

func TestDispatch_OpenBreakerSkipsProvider(t *testing.T) {
	t.Parallel()

	flaky := failing()
	stable := succeeding("stable")
	d, breakers := newTestDispatcher(
		[]provider.Descriptor{
			desc("flaky", true, provider.CapabilityText),
			desc("stable", true, provider.CapabilityText),
		},
		map[string]provider.Client{"flaky": flaky, "stable": stable},
	)

	// First dispatch fails over and trips flaky's breaker (threshold 1).
	resp, err := d.Dispatch(context.Background(), provider.CapabilityText, textRequest())
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, circuitbreaker.StateOpen, breakers.Get("flaky").State())

	// Second dispatch skips flaky without invoking its client.
	resp, err = d.Dispatch(context.Background(), provider.CapabilityText, textRequest())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "stable", resp.Provider)
	assert.Equal(t, 1, flaky.callCount(), "open breaker must short-circuit without a call")
}

func TestDispatch_CancellationEndsDispatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	first := &fakeClient{invoke: func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		cancel()
		return nil, context.Canceled
	}}
	second := succeeding("never")

	d, _ := newTestDispatcher(
		[]provider.Descriptor{
			desc("first", true, provider.CapabilityText),
			desc("second", true, provider.CapabilityText),
		},
		map[string]provider.Client{"first": first, "second": second},
	)

	resp, err := d.Dispatch(ctx, provider.CapabilityText, textRequest())

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, second.callCount(), "cancellation must not fail over to the next candidate")
}

func TestDispatch_SetsDuration(t *testing.T) {
	t.Parallel()

	slow := &fakeClient{invoke: func(ctx context.Context, req *provider.Request) (*provider.Response, error) {
		time.Sleep(10 * time.Millisecond)
		return &provider.Response{Text: "ok"}, nil
	}}
	d, _ := newTestDispatcher(
		[]provider.Descriptor{desc("slow", true, provider.CapabilityText)},
		map[string]provider.Client{"slow": slow},
	)

	resp, err := d.Dispatch(context.Background(), provider.CapabilityText, textRequest())

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.GreaterOrEqual(t, resp.Duration, 10*time.Millisecond)
}

func TestSetProviders_DropsStaleBreakers(t *testing.T) {
	t.Parallel()

	d, breakers := newTestDispatcher(
		[]provider.Descriptor{desc("old", true, provider.CapabilityText)},
		map[string]provider.Client{"old": failing()},
	)

	// Trip old's breaker so there is state to drop.
	_, _ = d.Dispatch(context.Background(), provider.CapabilityText, textRequest())
	require.NotNil(t, breakers.Get("old"))

	d.SetProviders(
		[]provider.Descriptor{desc("new", true, provider.CapabilityText)},
		map[string]provider.Client{"new": succeeding("new")},
	)

	assert.Nil(t, breakers.Get("old"))

	resp, err := d.Dispatch(context.Background(), provider.CapabilityText, textRequest())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "new", resp.Provider)
}

func TestSetProviders_SurvivorKeepsBreakerState(t *testing.T) {
	t.Parallel()

	d, breakers := newTestDispatcher(
		[]provider.Descriptor{
			desc("keeper", true, provider.CapabilityText),
			desc("goner", true, provider.CapabilitySearch),
		},
		map[string]provider.Client{"keeper": failing(), "goner": succeeding("x")},
	)

	_, _ = d.Dispatch(context.Background(), provider.CapabilityText, textRequest())
	require.Equal(t, circuitbreaker.StateOpen, breakers.Get("keeper").State())

	d.SetProviders(
		[]provider.Descriptor{desc("keeper", true, provider.CapabilityText)},
		map[string]provider.Client{"keeper": failing()},
	)

	assert.Equal(t, circuitbreaker.StateOpen, breakers.Get("keeper").State())
	assert.Nil(t, breakers.Get("goner"))
}

func TestStats(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(
		[]provider.Descriptor{
			desc("good", true, provider.CapabilityText),
			desc("bad", true, provider.CapabilitySearch),
		},
		map[string]provider.Client{"good": succeeding("x"), "bad": failing()},
	)

	_, _ = d.Dispatch(context.Background(), provider.CapabilityText, textRequest())
	_, _ = d.Dispatch(context.Background(), provider.CapabilitySearch, &provider.Request{
		Capability: provider.CapabilitySearch,
	})

	stats := d.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, int64(1), stats["good"].Attempts)
	assert.Equal(t, int64(0), stats["good"].Errors)
	assert.Equal(t, int64(1), stats["bad"].Attempts)
	assert.Equal(t, int64(1), stats["bad"].Errors)
	assert.Equal(t, circuitbreaker.StateOpen, stats["bad"].Breaker.State)
}
