// Package provider defines the contract between the dispatch core and the
// external AI service backends: capability tags, provider descriptors, the
// client interface, and the normalized error taxonomy.
package provider

import (
	"fmt"
	"strings"
)

// Capability is a category of operation a provider may or may not support.
type Capability string

// The closed set of capability tags. Routing is done by tag membership,
// never by runtime introspection of the client.
const (
	CapabilityText     Capability = "text"
	CapabilityVision   Capability = "vision"
	CapabilityImageGen Capability = "image_gen"
	CapabilitySearch   Capability = "search"
	CapabilityAudio    Capability = "audio"
)

// AllCapabilities lists every known capability tag.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityText,
		CapabilityVision,
		CapabilityImageGen,
		CapabilitySearch,
		CapabilityAudio,
	}
}

// Valid reports whether c is a known capability tag.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityText, CapabilityVision, CapabilityImageGen, CapabilitySearch, CapabilityAudio:
		return true
	default:
		return false
	}
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability parses a capability tag from its string form.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown capability: %q", s)
	}
	return c, nil
}

// CapabilitySet is a set of capability tags.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given tags.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the given capability.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the capabilities in the set in canonical order.
func (s CapabilitySet) List() []Capability {
	var out []Capability
	for _, c := range AllCapabilities() {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}
