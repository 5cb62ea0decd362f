// Package session owns the lifecycle of generative model sessions: probing
// availability, creating at most one session per kind with exactly-once
// acquisition semantics, streaming output, and cancellation. It is
// structured into small files by concern:
//
//   - client.go: Client facade holding one Manager per kind plus the quiz
//     pair cache; the only type callers outside internal/ should need.
//   - manager.go: per-kind Manager type, constructor, simple getters.
//   - config.go: Config and package defaults.
//   - types.go: lifecycle State and the Activation token.
//   - errors.go: error types and predicates (IsCapabilityAbsent, ...).
//   - probe.go: cached availability probing.
//   - acquire.go: Acquire/Release and the single in-flight creation attempt.
//   - admission.go: per-manager queueing and generation admission.
//   - generate.go: single-shot generation.
//   - stream.go: Stream, Chunk, and streaming generation.
//   - events.go: lifecycle event publishing (noop + in-memory impls).
//
// External packages should treat this package as the orchestration layer
// and use Client/Manager methods only; internal state is subject to change.
package session
