package config

import (
	"errors"
	"fmt"

	"github.com/openjournal/dispatch/internal/provider"
)

// ValidationError aggregates configuration validation failures.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid configuration: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid configuration: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ErrNoProviders is returned when the configuration lists no providers.
var ErrNoProviders = errors.New("no providers configured")

// ValidateConfig validates a loaded configuration. Component-level knobs
// (thresholds, timeouts) are clamped by their packages; validation here
// rejects only what cannot be safely defaulted.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Problems: []string{"configuration is nil"}}
	}

	var problems []string

	if cfg.RateLimit.RequestsPerMinute < 0 {
		problems = append(problems, "rateLimit.requestsPerMinute must not be negative")
	}
	if cfg.RateLimit.RequestsPerDay < 0 {
		problems = append(problems, "rateLimit.requestsPerDay must not be negative")
	}
	if cfg.Retry.MaxRetries < 0 {
		problems = append(problems, "retry.maxRetries must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Providers))
	for i, p := range cfg.Providers {
		if p.ID == "" {
			problems = append(problems, fmt.Sprintf("providers[%d]: id is required", i))
			continue
		}
		if seen[p.ID] {
			problems = append(problems, fmt.Sprintf("providers[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true

		if len(p.Capabilities) == 0 {
			problems = append(problems, fmt.Sprintf("provider %s: at least one capability is required", p.ID))
		}
		for _, c := range p.Capabilities {
			if _, err := provider.ParseCapability(c); err != nil {
				problems = append(problems, fmt.Sprintf("provider %s: %v", p.ID, err))
			}
		}
		if p.IsEnabled() && p.BaseURL == "" {
			problems = append(problems, fmt.Sprintf("provider %s: baseUrl is required", p.ID))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Descriptors converts the configured provider list into descriptors, in
// configuration order. The configuration must already be validated.
func (c *Config) Descriptors() []provider.Descriptor {
	out := make([]provider.Descriptor, 0, len(c.Providers))
	for _, p := range c.Providers {
		caps := make([]provider.Capability, 0, len(p.Capabilities))
		for _, s := range p.Capabilities {
			capability, err := provider.ParseCapability(s)
			if err != nil {
				continue
			}
			caps = append(caps, capability)
		}
		out = append(out, provider.Descriptor{
			ID:           p.ID,
			Enabled:      p.IsEnabled(),
			Capabilities: provider.NewCapabilitySet(caps...),
			Credentials: provider.Credentials{
				APIKey:  p.APIKey,
				BaseURL: p.BaseURL,
				OrgID:   p.OrgID,
			},
			Timeout: p.Timeout.Duration(),
		})
	}
	return out
}
