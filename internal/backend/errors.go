package backend

// capabilityRefusedError signals that the runtime exists but refuses to
// serve this host/profile (e.g. auth failure, model disabled).
type capabilityRefusedError struct{ msg string }

func (e capabilityRefusedError) Error() string { return e.msg }

// ErrCapabilityRefused constructs a capabilityRefusedError.
func ErrCapabilityRefused(msg string) error { return capabilityRefusedError{msg: msg} }

// IsCapabilityRefused reports whether err indicates a refused capability.
func IsCapabilityRefused(err error) bool {
	_, ok := err.(capabilityRefusedError)
	return ok
}

// fetchFailedError signals that a required model download/load step did not
// complete. Retryable.
type fetchFailedError struct{ msg string }

func (e fetchFailedError) Error() string { return e.msg }

// ErrFetchFailed constructs a fetchFailedError.
func ErrFetchFailed(msg string) error { return fetchFailedError{msg: msg} }

// IsFetchFailed reports whether err indicates an incomplete fetch.
func IsFetchFailed(err error) bool {
	_, ok := err.(fetchFailedError)
	return ok
}

// generationFailedError signals a per-request failure on a healthy session.
// Retryable per request; does not invalidate the session.
type generationFailedError struct{ msg string }

func (e generationFailedError) Error() string { return e.msg }

// ErrGenerationFailed constructs a generationFailedError.
func ErrGenerationFailed(msg string) error { return generationFailedError{msg: msg} }

// IsGenerationFailed reports whether err indicates a transient generation
// failure.
func IsGenerationFailed(err error) bool {
	_, ok := err.(generationFailedError)
	return ok
}
