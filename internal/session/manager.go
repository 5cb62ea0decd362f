package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"genaid/internal/backend"
	"genaid/pkg/types"
)

// Manager owns the one live session of a single kind. It serializes
// concurrent acquisition attempts into a single in-flight operation, relays
// fetch progress, and gates generations through a FIFO queue with a single
// in-flight slot.
//
// Lifecycle: uninitialized -> creating -> ready -> disposed, with
// creating -> uninitialized on failure so a later attempt may retry.
// Disposed is terminal; a manager needed after disposal is built fresh.
type Manager struct {
	kind      types.Kind
	backend   backend.Backend
	publisher EventPublisher
	log       zerolog.Logger
	maxWait   time.Duration

	// baseCtx is canceled on Release so in-flight work observes disposal.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	state    State
	sess     backend.Session
	opts     types.Options
	avail    types.Availability
	creating *attempt
	lastUsed time.Time

	// Admission primitives, sized at construction.
	genCh   chan struct{} // size 1: single in-flight generation
	queueCh chan struct{} // buffered: queue slots
}

func newManager(kind types.Kind, b backend.Backend, cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		kind:       kind,
		backend:    b,
		publisher:  cfg.Publisher,
		log:        cfg.Logger.With().Str("kind", string(kind)).Logger(),
		maxWait:    cfg.MaxWait,
		baseCtx:    ctx,
		baseCancel: cancel,
		state:      StateUninitialized,
		opts:       cfg.DefaultOptions,
		avail:      types.AvailabilityUnknown,
		genCh:      make(chan struct{}, 1),
		queueCh:    make(chan struct{}, cfg.MaxQueueDepth),
	}
}

// Kind returns the kind this manager serves.
func (m *Manager) Kind() types.Kind { return m.kind }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready reports whether a live session exists.
func (m *Manager) Ready() bool { return m.State() == StateReady }

// CurrentOptions returns the negotiated configuration snapshot. Before any
// session has been created this is the configured default; afterwards it
// reflects what the backend actually accepted. Usable without a live
// session.
func (m *Manager) CurrentOptions() types.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// Status reports a read-only projection for /status.
func (m *Manager) Status() types.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := types.SessionStatus{
		Kind:          m.kind,
		State:         string(m.state),
		Availability:  m.avail,
		Options:       m.opts,
		QueueLen:      len(m.queueCh),
		Inflight:      len(m.genCh),
		MaxQueueDepth: cap(m.queueCh),
	}
	if !m.lastUsed.IsZero() {
		st.LastUsed = m.lastUsed.Unix()
	}
	return st
}

// joinContexts returns a context canceled when either a or b is done. The
// cancel func must be called to release the goroutine.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
		case <-b.Done():
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx, cancel
}
