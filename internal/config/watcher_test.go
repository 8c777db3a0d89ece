package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watcherConfigV1 = `
listen: ":9000"
providers:
  - id: alpha
    capabilities: [text]
    baseUrl: https://alpha.example.com
`

const watcherConfigV2 = `
listen: ":9001"
providers:
  - id: alpha
    capabilities: [text]
    baseUrl: https://alpha.example.com
  - id: beta
    capabilities: [search]
    baseUrl: https://beta.example.com
`

const watcherConfigBroken = `
providers:
  - id: alpha
    capabilities: [telepathy]
    baseUrl: https://alpha.example.com
`

func TestWatcher_StartLoadsInitialConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherConfigV1), 0o600))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	cfg := w.GetLastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, ":9000", cfg.Listen)
}

func TestWatcher_StartFailsOnInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherConfigBroken), 0o600))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherConfigV1), 0o600))

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		reloaded <- cfg
	}, WithDebounceDelay(20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte(watcherConfigV2), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, ":9001", cfg.Listen)
		assert.Len(t, cfg.Providers, 2)
	case <-time.After(3 * time.Second):
		t.Fatal("reload callback was not invoked")
	}

	assert.Equal(t, ":9001", w.GetLastConfig().Listen)
}

func TestWatcher_KeepsLastGoodConfigOnBrokenReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherConfigV1), 0o600))

	var mu sync.Mutex
	var callbacks int
	errCh := make(chan error, 1)

	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		callbacks++
		mu.Unlock()
	},
		WithDebounceDelay(20*time.Millisecond),
		WithErrorCallback(func(err error) { errCh <- err }),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte(watcherConfigBroken), 0o600))

	select {
	case rerr := <-errCh:
		assert.Error(t, rerr)
	case <-time.After(3 * time.Second):
		t.Fatal("error callback was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, callbacks, "broken config must not be published")
	assert.Equal(t, ":9000", w.GetLastConfig().Listen)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherConfigV1), 0o600))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
