package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"genaid/internal/backend"
	"genaid/pkg/types"
)

func TestProbeCachesResult(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{Availability: types.AvailabilityReady})
	m := newTestManager(mem, nil)
	ctx := context.Background()

	require.Equal(t, types.AvailabilityReady, m.Probe(ctx, false))
	require.Equal(t, types.AvailabilityReady, m.Probe(ctx, false))
	require.Equal(t, types.AvailabilityReady, m.Probe(ctx, false))
	require.Equal(t, 1, mem.Probes())
}

func TestProbeForceRefreshes(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{Availability: types.AvailabilityFetchNeeded})
	m := newTestManager(mem, nil)
	ctx := context.Background()

	require.Equal(t, types.AvailabilityFetchNeeded, m.Probe(ctx, false))
	mem.SetAvailability(types.AvailabilityReady)

	// Stale until forced.
	require.Equal(t, types.AvailabilityFetchNeeded, m.Probe(ctx, false))
	require.Equal(t, types.AvailabilityReady, m.Probe(ctx, true))
	require.Equal(t, 2, mem.Probes())
}

func TestProbeFailureMapsToUnavailable(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{ProbeErr: errors.New("connection refused")})
	m := newTestManager(mem, nil)

	require.Equal(t, types.AvailabilityUnavailable, m.Probe(context.Background(), false))
}

func TestProbeUnknownAnswerMapsToUnavailable(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{Availability: types.AvailabilityUnknown})
	m := newTestManager(mem, nil)

	require.Equal(t, types.AvailabilityUnavailable, m.Probe(context.Background(), false))
}

func TestProbeNoBackend(t *testing.T) {
	m := newTestManager(nil, nil)

	require.Equal(t, types.AvailabilityNoBackend, m.Probe(context.Background(), false))
	// Still no-backend on force: there is nothing to ask.
	require.Equal(t, types.AvailabilityNoBackend, m.Probe(context.Background(), true))
}

func TestProbePublishesEvent(t *testing.T) {
	pub := NewMemoryPublisher()
	mem := backend.NewMemory(backend.MemoryConfig{Availability: types.AvailabilityReady})
	m := newTestManager(mem, pub)

	m.Probe(context.Background(), false)
	evs := pub.Named("probe")
	require.Len(t, evs, 1)
	require.Equal(t, string(types.AvailabilityReady), evs[0].Fields["availability"])
}
