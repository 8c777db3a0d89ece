package provider

import "time"

// Credentials holds the secrets and endpoint configuration needed to reach
// one provider. Values are supplied by application configuration and are
// read-only to the dispatch core.
type Credentials struct {
	// APIKey is the bearer token or API key for the provider.
	APIKey string

	// BaseURL is the root URL of the provider's HTTP API.
	BaseURL string

	// OrgID is an optional organization identifier some providers require.
	OrgID string
}

// Descriptor identifies one external provider and what it can do.
// Priority is implicit: a descriptor's position in the configured list is its
// rank, earlier entries are preferred. Descriptors are re-derived whenever
// configuration changes.
type Descriptor struct {
	// ID uniquely identifies the provider.
	ID string

	// Enabled indicates whether the provider participates in dispatch.
	Enabled bool

	// Capabilities is the set of operations the provider supports.
	Capabilities CapabilitySet

	// Credentials holds the provider's endpoint and secrets.
	Credentials Credentials

	// Timeout bounds a single network attempt against this provider.
	// Zero means the transport default applies.
	Timeout time.Duration
}

// Supports reports whether the descriptor is enabled and carries the
// given capability tag.
func (d Descriptor) Supports(c Capability) bool {
	return d.Enabled && d.Capabilities.Has(c)
}
