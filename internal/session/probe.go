package session

import (
	"context"

	"genaid/pkg/types"
)

// Probe reports whether the kind can serve sessions. The result is cached
// per kind; the cached value is returned unless force is set or nothing has
// been probed yet. A backend query failure maps to unavailable, never to
// ready. A kind with no backend at all reports no-backend without touching
// the wire, and stays that way until a forced re-probe.
func (m *Manager) Probe(ctx context.Context, force bool) types.Availability {
	m.mu.Lock()
	if !force && m.avail != types.AvailabilityUnknown {
		a := m.avail
		m.mu.Unlock()
		return a
	}
	m.mu.Unlock()

	a := m.probeBackend(ctx)

	m.mu.Lock()
	m.avail = a
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: "probe", Kind: m.kind, Fields: map[string]any{"availability": string(a)}})
	return a
}

func (m *Manager) probeBackend(ctx context.Context) types.Availability {
	if m.backend == nil {
		return types.AvailabilityNoBackend
	}
	a, err := m.backend.ProbeAvailability(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("availability probe failed")
		return types.AvailabilityUnavailable
	}
	if a == "" || a == types.AvailabilityUnknown {
		// A backend that cannot say is not one we may call ready.
		return types.AvailabilityUnavailable
	}
	return a
}
