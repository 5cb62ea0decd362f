package types

import (
	"fmt"
	"strings"
)

// Kind identifies one of the generative capability categories the daemon
// manages. The set is closed; each kind is backed by its own runtime
// endpoint but shares the same lifecycle contract.
type Kind string

const (
	KindSummarizer Kind = "summarizer"
	KindWriter     Kind = "writer"
	KindPrompt     Kind = "prompt"
)

// Kinds lists every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindSummarizer, KindWriter, KindPrompt}
}

// ParseKind validates a kind string from an API path or config key.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSummarizer, KindWriter, KindPrompt:
		return k, nil
	default:
		return "", fmt.Errorf("unknown model kind: %q", s)
	}
}

// Availability reports whether a kind is usable right now.
type Availability string

const (
	// AvailabilityReady means a session can be created immediately.
	AvailabilityReady Availability = "ready"
	// AvailabilityFetchNeeded means the runtime must download or load the
	// model before a session can serve requests.
	AvailabilityFetchNeeded Availability = "fetch-needed"
	// AvailabilityFetching means a download/load is already in progress.
	AvailabilityFetching Availability = "fetching"
	// AvailabilityUnavailable means the capability exists but is refused or
	// broken for this host right now.
	AvailabilityUnavailable Availability = "unavailable"
	// AvailabilityUnknown means no probe has run yet.
	AvailabilityUnknown Availability = "unknown"
	// AvailabilityNoBackend means no runtime is configured for the kind at
	// all, as opposed to one that exists but refuses.
	AvailabilityNoBackend Availability = "no-backend"
)

// Options carries the generation parameters negotiated for a session.
// Values outside the runtime's supported range are clamped at creation and
// the clamped values become the session baseline.
type Options struct {
	// Sampling temperature (higher = more random).
	Temperature float64 `json:"temperature,omitempty"`
	// Top-K sampling: limit candidates to the top K tokens.
	TopK int `json:"top_k,omitempty"`
	// Maximum number of new tokens per response.
	MaxTokens int `json:"max_tokens,omitempty"`
	// Optional system prompt applied to every request on the session.
	SystemPrompt string `json:"system_prompt,omitempty"`
}
