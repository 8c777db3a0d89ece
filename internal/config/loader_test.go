package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
listen: ":9000"
log:
  level: debug
  format: console
rateLimit:
  requestsPerMinute: 5
  requestsPerDay: 500
  interCallDelay: 250ms
circuitBreaker:
  failureThreshold: 3
  successThreshold: 2
  resetTimeout: 10s
retry:
  maxRetries: 2
  attemptTimeout: 15s
  initialBackoff: 500ms
  maxBackoff: 8s
providers:
  - id: alpha
    capabilities: [text, vision]
    baseUrl: https://alpha.example.com
    apiKey: key-alpha
    timeout: 20s
  - id: beta
    enabled: false
    capabilities: [search]
    baseUrl: https://beta.example.com
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeTempConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.InterCallDelay.Duration())
	assert.Equal(t, 3, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.CircuitBreaker.ResetTimeout.Duration())
	assert.Equal(t, 2, cfg.Retry.MaxRetries)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "alpha", cfg.Providers[0].ID)
	assert.True(t, cfg.Providers[0].IsEnabled())
	assert.Equal(t, 20*time.Second, cfg.Providers[0].Timeout.Duration())
	assert.False(t, cfg.Providers[1].IsEnabled())
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(writeTempConfig(t, "listen: [unclosed"))
	assert.Error(t, err)
}

func TestLoadConfigFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromReader(strings.NewReader("providers: []"))
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("DISPATCH_TEST_KEY", "from-env")

	content := `
providers:
  - id: alpha
    capabilities: [text]
    baseUrl: https://alpha.example.com
    apiKey: ${DISPATCH_TEST_KEY}
    orgId: ${DISPATCH_TEST_MISSING:-fallback-org}
`
	cfg, err := LoadConfigFromReader(strings.NewReader(content))
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "from-env", cfg.Providers[0].APIKey)
	assert.Equal(t, "fallback-org", cfg.Providers[0].OrgID)
}

func TestSubstituteEnvVars_EmptyValueWins(t *testing.T) {
	// A set-but-empty variable beats the default.
	t.Setenv("DISPATCH_TEST_EMPTY", "")

	content := `
providers:
  - id: alpha
    capabilities: [text]
    baseUrl: https://alpha.example.com
    apiKey: "${DISPATCH_TEST_EMPTY:-default}"
`
	cfg, err := LoadConfigFromReader(strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Providers[0].APIKey)
}

func TestSubstituteEnvVars_EscapedDollar(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "${NOT_A_VAR}", substituteEnvVars("$${NOT_A_VAR}"))
}

func TestSubstituteEnvVars_UnsetWithoutDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "key: ", substituteEnvVars("key: ${DISPATCH_SURELY_UNSET_VAR}"))
}
