package session

import "genaid/pkg/types"

// capabilityAbsentError signals that no backend exists for the kind at all.
// Not retryable without a configuration change and a forced re-probe.
type capabilityAbsentError struct{ kind types.Kind }

func (e capabilityAbsentError) Error() string {
	return "no backend for model kind: " + string(e.kind)
}

// IsCapabilityAbsent reports whether err indicates a missing backend.
func IsCapabilityAbsent(err error) bool {
	_, ok := err.(capabilityAbsentError)
	return ok
}

// authorizationMissingError signals a creation attempt without a user
// activation token. Retryable immediately from a valid interaction.
type authorizationMissingError struct{ kind types.Kind }

func (e authorizationMissingError) Error() string {
	return "acquiring " + string(e.kind) + " requires a user activation"
}

// IsAuthorizationMissing reports whether err indicates a creation attempt
// outside a direct-interaction window.
func IsAuthorizationMissing(err error) bool {
	_, ok := err.(authorizationMissingError)
	return ok
}

// notReadyError signals a generation call on a kind with no live session.
type notReadyError struct{ kind types.Kind }

func (e notReadyError) Error() string {
	return "no live session for model kind: " + string(e.kind)
}

// IsNotReady reports whether err indicates a generation without a session.
func IsNotReady(err error) bool {
	_, ok := err.(notReadyError)
	return ok
}

// disposedError signals use of a manager after Release. A disposed manager
// is terminal; construct a fresh one to reuse the kind.
type disposedError struct{ kind types.Kind }

func (e disposedError) Error() string {
	return "session manager disposed for model kind: " + string(e.kind)
}

// IsDisposed reports whether err indicates a disposed manager.
func IsDisposed(err error) bool {
	_, ok := err.(disposedError)
	return ok
}

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ kind types.Kind }

func (e tooBusyError) Error() string { return "too busy: " + string(e.kind) }

// IsTooBusy reports whether err indicates backpressure.
func IsTooBusy(err error) bool {
	_, ok := err.(tooBusyError)
	return ok
}
