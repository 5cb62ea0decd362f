// Package backend defines the contract a model runtime must satisfy and an
// HTTP adapter for OpenAI-compatible local runtimes (llama.cpp server and
// friends). The session layer consumes only these interfaces; nothing above
// this package knows how tokens are actually produced.
package backend

import (
	"context"

	"genaid/pkg/types"
)

// ProgressFunc receives fetch/load progress as a fraction in [0,1] while a
// session is being created. Callbacks happen on the creating goroutine.
type ProgressFunc func(fraction float64)

// Backend is one kind's runtime. Implementations must be safe for
// concurrent use; the session layer serializes creation itself but may
// probe concurrently.
type Backend interface {
	// ProbeAvailability reports whether the runtime can serve sessions.
	// A returned error is treated as unavailable by the caller, never as
	// ready.
	ProbeAvailability(ctx context.Context) (types.Availability, error)

	// Create prepares a live session. If the runtime must first download
	// or load its model, progress is reported through onProgress (which
	// may be nil). Implementations must return promptly once ctx is
	// canceled and must not invoke onProgress afterwards.
	Create(ctx context.Context, opts types.Options, onProgress ProgressFunc) (Session, error)
}

// Session is a live generation context for one kind. Sessions are owned by
// the session layer, which guarantees a single in-flight generation and is
// the only caller of Dispose.
type Session interface {
	// Options returns the parameters the runtime actually accepted, which
	// may differ from the requested ones (e.g. a clamped temperature).
	Options() types.Options

	// Generate produces a complete response for text.
	Generate(ctx context.Context, text string) (string, error)

	// GenerateStream produces the response incrementally, invoking
	// onFragment for each fragment in production order. Returning an error
	// from onFragment stops the stream. Implementations must return when
	// ctx is canceled.
	GenerateStream(ctx context.Context, text string, onFragment func(string) error) error

	// Dispose releases the session. Further calls on the session fail.
	Dispose() error
}
