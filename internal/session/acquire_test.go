package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genaid/internal/backend"
	"genaid/pkg/types"
)

func TestAcquireReadyIsIdempotent(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{})
	m := newTestManager(mem, nil)
	acquireReady(t, m)

	// Further acquires perform zero backend calls, with or without an
	// activation token.
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Acquire(context.Background(), Activation{}, types.Options{}, nil))
	}
	require.Equal(t, 1, mem.Creates())
}

func TestAcquireConcurrentCallersShareOneCreate(t *testing.T) {
	gate := make(chan struct{})
	mem := backend.NewMemory(backend.MemoryConfig{Gate: gate})
	m := newTestManager(mem, nil)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Acquire(context.Background(), UserActivation(), types.Options{}, nil)
		}(i)
	}
	// Wait until the single attempt is in flight, then let it finish.
	require.Eventually(t, func() bool { return m.State() == StateCreating }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	require.Equal(t, 1, mem.Creates())
	require.Equal(t, StateReady, m.State())
}

func TestAcquireConcurrentCallersShareOneFailure(t *testing.T) {
	gate := make(chan struct{})
	boom := errors.New("backend exploded")
	mem := backend.NewMemory(backend.MemoryConfig{Gate: gate, CreateErr: boom})
	m := newTestManager(mem, nil)

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Acquire(context.Background(), UserActivation(), types.Options{}, nil)
		}(i)
	}
	require.Eventually(t, func() bool { return m.State() == StateCreating }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.ErrorIs(t, errs[i], boom)
	}
	require.Equal(t, 1, mem.Creates())
	require.Equal(t, StateUninitialized, m.State())
}

func TestAcquireRetriesAfterFailure(t *testing.T) {
	boom := errors.New("no luck")
	mem := backend.NewMemory(backend.MemoryConfig{CreateErr: boom})
	m := newTestManager(mem, nil)

	err := m.Acquire(context.Background(), UserActivation(), types.Options{}, nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, StateUninitialized, m.State())

	// The failed attempt left room for a retry that reaches the backend.
	err = m.Acquire(context.Background(), UserActivation(), types.Options{}, nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, mem.Creates())
}

func TestAcquireRequiresActivationForFirstCreate(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{})
	m := newTestManager(mem, nil)

	err := m.Acquire(context.Background(), Activation{}, types.Options{}, nil)
	require.True(t, IsAuthorizationMissing(err), "got %v", err)
	require.Equal(t, 0, mem.Creates())
	require.Equal(t, StateUninitialized, m.State())

	acquireReady(t, m)
}

func TestAcquireNoBackendFailsWithoutCreating(t *testing.T) {
	m := newTestManager(nil, nil)
	err := m.Acquire(context.Background(), UserActivation(), types.Options{}, nil)
	require.True(t, IsCapabilityAbsent(err), "got %v", err)
	require.Equal(t, StateUninitialized, m.State())
	require.Equal(t, types.AvailabilityNoBackend, m.Probe(context.Background(), false))
}

func TestAcquireProbeIsAdvisory(t *testing.T) {
	// An unavailable or fetch-needed probe must not block creation; the
	// creation attempt itself is authoritative.
	for _, a := range []types.Availability{types.AvailabilityUnavailable, types.AvailabilityFetchNeeded} {
		mem := backend.NewMemory(backend.MemoryConfig{Availability: a})
		m := newTestManager(mem, nil)
		acquireReady(t, m)
		require.Equal(t, 1, mem.Creates())
	}
}

func TestAcquireProgressMonotoneWithinAttempt(t *testing.T) {
	// Out-of-order and out-of-range backend callbacks are clamped and
	// filtered so callers observe a non-decreasing sequence ending at 1.
	mem := backend.NewMemory(backend.MemoryConfig{Progress: []float64{0.4, 0.2, 0.7, 1.5}})
	m := newTestManager(mem, nil)

	var seen []float64
	err := m.Acquire(context.Background(), UserActivation(), types.Options{}, func(f float64) {
		seen = append(seen, f)
	})
	require.NoError(t, err)
	require.Equal(t, []float64{0.4, 0.7, 1}, seen)
}

func TestAcquireNegotiatedOptionsBecomeBaseline(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{})
	m := newTestManager(mem, nil)

	// Defaults are visible before any session exists.
	require.Equal(t, types.Options{}, m.CurrentOptions())

	err := m.Acquire(context.Background(), UserActivation(), types.Options{Temperature: 9, MaxTokens: 0}, nil)
	require.NoError(t, err)
	opts := m.CurrentOptions()
	require.Equal(t, 2.0, opts.Temperature, "temperature clamped by the backend")
	require.NotZero(t, opts.MaxTokens, "backend default filled in")
}

func TestAcquireOnDisposedManagerFails(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{})
	m := newTestManager(mem, nil)
	acquireReady(t, m)
	m.Release()

	err := m.Acquire(context.Background(), UserActivation(), types.Options{}, nil)
	require.True(t, IsDisposed(err), "got %v", err)
	require.Equal(t, StateDisposed, m.State())
}

func TestReleaseDuringCreationCancelsAttempt(t *testing.T) {
	gate := make(chan struct{})
	mem := backend.NewMemory(backend.MemoryConfig{Gate: gate})
	m := newTestManager(mem, nil)

	done := make(chan error, 1)
	go func() {
		done <- m.Acquire(context.Background(), UserActivation(), types.Options{}, nil)
	}()
	require.Eventually(t, func() bool { return m.State() == StateCreating }, time.Second, time.Millisecond)

	m.Release()
	close(gate)
	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateDisposed, m.State())
}

func TestAcquireCancelPropagatesToJoiners(t *testing.T) {
	gate := make(chan struct{})
	pub := NewMemoryPublisher()
	mem := backend.NewMemory(backend.MemoryConfig{Gate: gate})
	m := newTestManager(mem, pub)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		first <- m.Acquire(ctx, UserActivation(), types.Options{}, nil)
	}()
	require.Eventually(t, func() bool { return m.State() == StateCreating }, time.Second, time.Millisecond)

	joiner := make(chan error, 1)
	go func() {
		joiner <- m.Acquire(context.Background(), Activation{}, types.Options{}, nil)
	}()
	require.Eventually(t, func() bool { return len(pub.Named("acquire_join")) == 1 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)
	require.ErrorIs(t, <-joiner, context.Canceled)
	require.Equal(t, StateUninitialized, m.State())
	close(gate)
}

func TestAcquireEventSequence(t *testing.T) {
	pub := NewMemoryPublisher()
	mem := backend.NewMemory(backend.MemoryConfig{Progress: []float64{0.5, 1}})
	m := newTestManager(mem, pub)
	acquireReady(t, m)

	var names []string
	for _, e := range pub.Events() {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{"acquire_start", "probe", "acquire_progress", "acquire_progress", "acquire_ready"}, names)
}
