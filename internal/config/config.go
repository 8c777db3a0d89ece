// Package config defines the dispatch daemon's configuration surface:
// the ordered provider list plus limiter, breaker, retry, logging, and
// tracing settings, loaded from YAML with environment substitution and
// re-derived on file change without a restart.
package config

// Config is the root configuration document.
type Config struct {
	// Listen is the address the daemon's HTTP surface binds to.
	Listen string `yaml:"listen"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Tracing configures OpenTelemetry tracing.
	Tracing TracingConfig `yaml:"tracing"`

	// RateLimit configures the process-wide admission limiter.
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	// CircuitBreaker configures the per-provider circuit breakers.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`

	// Retry configures the transport-level retry helper.
	Retry RetryConfig `yaml:"retry"`

	// Providers is the ordered provider list. Position is priority:
	// earlier entries are tried first.
	Providers []ProviderConfig `yaml:"providers"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig represents tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// RateLimitConfig represents the global admission quota configuration.
type RateLimitConfig struct {
	// RequestsPerMinute is the minute-window quota. Zero disables it.
	RequestsPerMinute int `yaml:"requestsPerMinute"`

	// RequestsPerDay is the day-window quota. Zero disables it.
	RequestsPerDay int `yaml:"requestsPerDay"`

	// InterCallDelay is the fixed pause between consecutive admitted calls.
	InterCallDelay Duration `yaml:"interCallDelay"`
}

// CircuitBreakerConfig represents per-provider breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int      `yaml:"failureThreshold"`
	SuccessThreshold int      `yaml:"successThreshold"`
	ResetTimeout     Duration `yaml:"resetTimeout"`
}

// RetryConfig represents transport retry configuration.
type RetryConfig struct {
	MaxRetries     int      `yaml:"maxRetries"`
	AttemptTimeout Duration `yaml:"attemptTimeout"`
	InitialBackoff Duration `yaml:"initialBackoff"`
	MaxBackoff     Duration `yaml:"maxBackoff"`
}

// ProviderConfig describes one external provider.
type ProviderConfig struct {
	// ID uniquely identifies the provider.
	ID string `yaml:"id"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	// Capabilities lists the capability tags the provider supports.
	Capabilities []string `yaml:"capabilities"`

	// BaseURL is the root URL of the provider's HTTP API.
	BaseURL string `yaml:"baseUrl"`

	// APIKey is the provider credential; typically supplied as ${VAR}.
	APIKey string `yaml:"apiKey"`

	// OrgID is an optional organization identifier.
	OrgID string `yaml:"orgId"`

	// Timeout bounds a single network attempt against this provider.
	Timeout Duration `yaml:"timeout"`
}

// IsEnabled reports whether the provider participates in dispatch.
// An omitted enabled field means enabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// DefaultListen is the default HTTP listen address.
const DefaultListen = ":8090"

// Default returns a Config with default values and no providers.
func Default() *Config {
	return &Config{
		Listen: DefaultListen,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
