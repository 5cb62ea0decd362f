package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"genaid/internal/backend"
	"genaid/internal/session"
	"genaid/pkg/types"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusForError maps session/backend errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case session.IsAuthorizationMissing(err):
		return http.StatusUnauthorized
	case backend.IsCapabilityRefused(err):
		return http.StatusForbidden
	case session.IsCapabilityAbsent(err):
		return http.StatusNotImplemented
	case session.IsNotReady(err):
		return http.StatusConflict
	case session.IsDisposed(err):
		return http.StatusGone
	case session.IsTooBusy(err):
		return http.StatusTooManyRequests
	case backend.IsFetchFailed(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeMappedError maps err and writes the payload, with backpressure
// accounting for 429s.
func writeMappedError(w http.ResponseWriter, err error) {
	code := statusForError(err)
	if code == http.StatusTooManyRequests {
		IncrementBackpressure("queue_full")
	}
	writeJSONError(w, code, err.Error())
}
