package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"genaid/internal/backend"
	"genaid/pkg/types"
)

func testConfig(pub EventPublisher) Config {
	return Config{
		Publisher: pub,
		MaxWait:   2 * time.Second,
		Logger:    zerolog.Nop(),
	}.withDefaults()
}

func newTestManager(b backend.Backend, pub EventPublisher) *Manager {
	return newManager(types.KindSummarizer, b, testConfig(pub))
}

// acquireReady brings a manager to the ready state or fails the test.
func acquireReady(t *testing.T, m *Manager) {
	t.Helper()
	err := m.Acquire(context.Background(), UserActivation(), types.Options{}, nil)
	require.NoError(t, err)
	require.Equal(t, StateReady, m.State())
}

// collect drains a stream until it closes or the timeout fires.
func collect(t *testing.T, st *Stream) []Chunk {
	t.Helper()
	var out []Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ch, ok := <-st.Chunks():
			if !ok {
				return out
			}
			out = append(out, ch)
		case <-timeout:
			t.Fatalf("stream did not close; got %d chunks", len(out))
		}
	}
}
