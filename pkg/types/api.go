package types

// GenerateRequest is the payload for POST /v1/models/{kind}/generate.
type GenerateRequest struct {
	// Text to summarize / rewrite / answer about.
	Text string `json:"text"`
	// If true, stream fragments as NDJSON lines instead of one JSON body.
	Stream bool `json:"stream,omitempty"`
}

// GenerateResponse is the non-streaming generation result.
type GenerateResponse struct {
	Output string `json:"output"`
}

// AvailabilityResponse wraps a probe result.
type AvailabilityResponse struct {
	Kind         Kind         `json:"kind"`
	Availability Availability `json:"availability"`
}

// PairRequest asks for the cached true/false statement pair of a subject.
type PairRequest struct {
	// Stable identity of the subject, e.g. a flashcard record id.
	SubjectID string `json:"subject_id"`
	// The subject text the statements are generated about.
	SubjectText string `json:"subject_text"`
}

// PairResponse is the memoized statement pair for one quiz question.
type PairResponse struct {
	SubjectID      string `json:"subject_id"`
	TrueStatement  string `json:"true_statement"`
	FalseStatement string `json:"false_statement"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// SessionStatus summarizes one kind's manager for /status.
type SessionStatus struct {
	Kind Kind `json:"kind"`
	// Lifecycle state: uninitialized, creating, ready, disposed.
	State string `json:"state"`
	// Last probed availability for the kind.
	Availability Availability `json:"availability"`
	// Last time this session served a request (unix seconds, 0 if never).
	LastUsed int64 `json:"last_used_unix,omitempty"`
	// Negotiated options, meaningful once a session has been created.
	Options Options `json:"options"`
	// Current queue length for incoming generations.
	QueueLen int `json:"queue_len"`
	// In-flight generations (0 or 1).
	Inflight int `json:"inflight"`
	// Queued generations allowed before backpressure triggers.
	MaxQueueDepth int `json:"max_queue_depth"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Sessions []SessionStatus `json:"sessions"`
	// Memoized quiz pairs currently held.
	CachedPairs int `json:"cached_pairs"`
	// Uptime of the daemon in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}
