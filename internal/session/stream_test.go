package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genaid/internal/backend"
)

func TestGenerateStreamDeliversFragmentsInOrder(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{
		Script: map[string]string{"cells": "The mitochondria produces energy."},
	})
	m := newTestManager(mem, nil)
	acquireReady(t, m)

	st, err := m.GenerateStream(context.Background(), "cells")
	require.NoError(t, err)
	chunks := collect(t, st)

	var frags []string
	for _, c := range chunks {
		require.NoError(t, c.Err)
		frags = append(frags, c.Text)
	}
	require.Equal(t, []string{"The ", "mitochondria ", "produces ", "energy."}, frags)
}

func TestGenerateStreamEmptyInputShortCircuits(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{})
	m := newTestManager(mem, nil)
	// No session exists and none is needed: blank input never reaches the
	// backend.
	for _, text := range []string{"", "   ", "\n\t"} {
		st, err := m.GenerateStream(context.Background(), text)
		require.NoError(t, err)
		require.Empty(t, collect(t, st))
	}
	require.Equal(t, 0, mem.Streams())
	require.Equal(t, 0, mem.Creates())
}

func TestGenerateStreamCancellationHaltsDelivery(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{
		Script:        map[string]string{"q": "one two three four five"},
		FragmentDelay: 50 * time.Millisecond,
	})
	m := newTestManager(mem, nil)
	acquireReady(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	st, err := m.GenerateStream(ctx, "q")
	require.NoError(t, err)

	first, ok := <-st.Chunks()
	require.True(t, ok)
	require.Equal(t, "one ", first.Text)
	cancel()

	// Nothing is delivered after the token fires; the stream just ends.
	require.Empty(t, collect(t, st))
}

func TestStreamCloseStopsProduction(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{
		Script:        map[string]string{"q": "one two three four five"},
		FragmentDelay: 50 * time.Millisecond,
	})
	m := newTestManager(mem, nil)
	acquireReady(t, m)

	st, err := m.GenerateStream(context.Background(), "q")
	require.NoError(t, err)
	_, ok := <-st.Chunks()
	require.True(t, ok)

	st.Close()
	require.Empty(t, collect(t, st))
	// Close is safe to repeat after the stream finished.
	st.Close()
}

func TestGenerateStreamMidStreamErrorIsTagged(t *testing.T) {
	boom := backend.ErrGenerationFailed("runtime fell over")
	mem := backend.NewMemory(backend.MemoryConfig{
		Script:    map[string]string{"q": "partial answer"},
		StreamErr: boom,
	})
	m := newTestManager(mem, nil)
	acquireReady(t, m)

	st, err := m.GenerateStream(context.Background(), "q")
	require.NoError(t, err)
	chunks := collect(t, st)
	require.Len(t, chunks, 3)

	// Fragments first, then exactly one terminal error chunk: the failure
	// never masquerades as stream text.
	require.Equal(t, "partial ", chunks[0].Text)
	require.Equal(t, "answer", chunks[1].Text)
	require.Empty(t, chunks[2].Text)
	require.ErrorIs(t, chunks[2].Err, boom)
}

func TestReleaseDuringStreamIsSafe(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{
		Script:        map[string]string{"q": "one two three four five"},
		FragmentDelay: 50 * time.Millisecond,
	})
	m := newTestManager(mem, nil)
	acquireReady(t, m)

	st, err := m.GenerateStream(context.Background(), "q")
	require.NoError(t, err)
	_, ok := <-st.Chunks()
	require.True(t, ok)

	// Release never throws, even with the stream mid-flight, and the
	// stream observes disposal as cancellation.
	m.Release()
	require.Empty(t, collect(t, st))
	require.Equal(t, StateDisposed, m.State())
	require.Equal(t, 1, mem.Disposes())
}

func TestGenerateStreamRequiresLiveSession(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{})
	m := newTestManager(mem, nil)

	_, err := m.GenerateStream(context.Background(), "anything")
	require.True(t, IsNotReady(err), "got %v", err)
}

func TestGenerateStreamFreshPerCall(t *testing.T) {
	mem := backend.NewMemory(backend.MemoryConfig{
		Script: map[string]string{"q": "alpha beta"},
	})
	m := newTestManager(mem, nil)
	acquireReady(t, m)

	for i := 0; i < 2; i++ {
		st, err := m.GenerateStream(context.Background(), "q")
		require.NoError(t, err)
		require.Len(t, collect(t, st), 2)
	}
	require.Equal(t, 2, mem.Streams())
}
