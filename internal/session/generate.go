package session

import (
	"context"

	"genaid/internal/backend"
)

// Generate produces a complete response on the kind's live session. A
// transient failure is reported per request and does not invalidate the
// session. Disposal during the call cancels it.
func (m *Manager) Generate(ctx context.Context, text string) (string, error) {
	sess, err := m.liveSession()
	if err != nil {
		return "", err
	}
	release, err := m.beginGeneration(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	gctx, cancel := joinContexts(ctx, m.baseCtx)
	defer cancel()
	out, err := sess.Generate(gctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if m.baseCtx.Err() != nil {
			return "", disposedError{kind: m.kind}
		}
		return "", err
	}
	return out, nil
}

func (m *Manager) liveSession() (backend.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDisposed {
		return nil, disposedError{kind: m.kind}
	}
	if m.state != StateReady || m.sess == nil {
		return nil, notReadyError{kind: m.kind}
	}
	return m.sess, nil
}
