package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"genaid/internal/backend"
	"genaid/pkg/types"
)

// attempt is one in-flight creation. All concurrent Acquire callers for the
// same kind share a single attempt and observe its single outcome.
type attempt struct {
	id   string
	done chan struct{}
	err  error

	mu       sync.Mutex
	started  bool
	lastFrac float64
}

// Acquire ensures a live session for the kind, creating one if needed.
//
//   - If a session is already ready, Acquire returns immediately with no
//     backend calls.
//   - If a creation attempt is already in flight, the caller joins it and
//     observes the same outcome as everyone else. At most one creation
//     attempt per kind is ever in flight.
//   - Otherwise this caller starts the attempt. Starting one requires a
//     user activation token; joining or reusing does not.
//
// Fetch/load progress for the attempt is relayed through onProgress as
// fractions in [0,1], non-decreasing within the attempt. On failure the
// manager returns to uninitialized so a later Acquire may retry.
func (m *Manager) Acquire(ctx context.Context, act Activation, opts types.Options, onProgress backend.ProgressFunc) error {
	m.mu.Lock()
	switch m.state {
	case StateDisposed:
		m.mu.Unlock()
		return disposedError{kind: m.kind}
	case StateReady:
		m.lastUsed = time.Now()
		m.mu.Unlock()
		return nil
	case StateCreating:
		at := m.creating
		m.mu.Unlock()
		m.publisher.Publish(Event{Name: "acquire_join", Kind: m.kind, Fields: map[string]any{"attempt": at.id}})
		select {
		case <-at.done:
			return at.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Uninitialized: this caller starts the single creation attempt.
	if !act.granted {
		m.mu.Unlock()
		return authorizationMissingError{kind: m.kind}
	}
	at := &attempt{id: uuid.NewString(), done: make(chan struct{})}
	m.state = StateCreating
	m.creating = at
	m.mu.Unlock()

	start := time.Now()
	m.publisher.Publish(Event{Name: "acquire_start", Kind: m.kind, Fields: map[string]any{"attempt": at.id}})

	sess, err := m.runCreate(ctx, at, opts, onProgress)

	m.mu.Lock()
	switch {
	case m.state == StateDisposed:
		// Released while creating: the fresh session must not outlive
		// disposal, and joiners observe cancellation.
		if sess != nil {
			_ = sess.Dispose()
		}
		if err == nil {
			err = context.Canceled
		}
	case err == nil:
		m.state = StateReady
		m.sess = sess
		// The options the backend actually accepted become the baseline.
		m.opts = sess.Options()
		m.lastUsed = time.Now()
	default:
		m.state = StateUninitialized
	}
	m.creating = nil
	m.mu.Unlock()

	at.err = err
	close(at.done)

	if err != nil {
		m.log.Warn().Err(err).Dur("dur", time.Since(start)).Msg("acquire failed")
		m.publisher.Publish(Event{Name: "acquire_fail", Kind: m.kind, Fields: map[string]any{"attempt": at.id, "error": err.Error()}})
		return err
	}
	m.log.Info().Dur("dur", time.Since(start)).Msg("session ready")
	m.publisher.Publish(Event{Name: "acquire_ready", Kind: m.kind, Fields: map[string]any{"attempt": at.id, "dur_ms": int(time.Since(start) / time.Millisecond)}})
	return nil
}

func (m *Manager) runCreate(ctx context.Context, at *attempt, opts types.Options, onProgress backend.ProgressFunc) (backend.Session, error) {
	if m.Probe(ctx, false) == types.AvailabilityNoBackend {
		return nil, capabilityAbsentError{kind: m.kind}
	}
	// Beyond this point the probe is advisory: unavailable and fetch-needed
	// kinds still attempt creation, which is authoritative.
	cctx, cancel := joinContexts(ctx, m.baseCtx)
	defer cancel()
	sess, err := m.backend.Create(cctx, opts, m.progressRelay(cctx, at, onProgress))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if m.baseCtx.Err() != nil {
			return nil, context.Canceled
		}
		return nil, err
	}
	return sess, nil
}

// progressRelay clamps backend progress into [0,1], enforces non-decreasing
// delivery within the attempt, and discards callbacks arriving after
// cancellation.
func (m *Manager) progressRelay(ctx context.Context, at *attempt, onProgress backend.ProgressFunc) backend.ProgressFunc {
	return func(frac float64) {
		if ctx.Err() != nil {
			return
		}
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		at.mu.Lock()
		if at.started && frac < at.lastFrac {
			at.mu.Unlock()
			return
		}
		at.started = true
		at.lastFrac = frac
		at.mu.Unlock()
		m.publisher.Publish(Event{Name: "acquire_progress", Kind: m.kind, Fields: map[string]any{"attempt": at.id, "progress": frac}})
		if onProgress != nil {
			onProgress(frac)
		}
	}
}

// Release disposes the session if present and marks the manager disposed.
// Always safe to call and never fails; in-flight generations and streams
// observe disposal as cancellation. Disposed is terminal: a manager needed
// again is constructed fresh.
func (m *Manager) Release() {
	m.mu.Lock()
	if m.state == StateDisposed {
		m.mu.Unlock()
		return
	}
	sess := m.sess
	m.sess = nil
	m.state = StateDisposed
	m.mu.Unlock()

	m.baseCancel()
	if sess != nil {
		if err := sess.Dispose(); err != nil {
			m.log.Warn().Err(err).Msg("session dispose failed")
		}
	}
	m.publisher.Publish(Event{Name: "release", Kind: m.kind, Fields: map[string]any{}})
}
