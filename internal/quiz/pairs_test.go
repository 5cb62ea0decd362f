package quiz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetGeneratesOncePerSubject(t *testing.T) {
	p := NewPairs()
	var calls atomic.Int32
	gen := func(ctx context.Context) (Pair, error) {
		calls.Add(1)
		return Pair{TrueStatement: "t", FalseStatement: "f"}, nil
	}

	first, err := p.Get(context.Background(), "cells", gen)
	require.NoError(t, err)
	second, err := p.Get(context.Background(), "cells", gen)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, "cells", first.SubjectID)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, 1, p.Len())
}

func TestGetDistinctSubjects(t *testing.T) {
	p := NewPairs()
	gen := func(id string) GenerateFunc {
		return func(ctx context.Context) (Pair, error) {
			return Pair{TrueStatement: "true " + id, FalseStatement: "false " + id}, nil
		}
	}

	a, err := p.Get(context.Background(), "a", gen("a"))
	require.NoError(t, err)
	b, err := p.Get(context.Background(), "b", gen("b"))
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.Equal(t, 2, p.Len())
}

func TestGetConcurrentCallersCoalesce(t *testing.T) {
	p := NewPairs()
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	gen := func(ctx context.Context) (Pair, error) {
		calls.Add(1)
		close(started)
		<-release
		return Pair{TrueStatement: "t", FalseStatement: "f"}, nil
	}

	const n = 8
	results := make([]Pair, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pr, err := p.Get(context.Background(), "cells", gen)
			require.NoError(t, err)
			results[i] = pr
		}(i)
	}
	<-started
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, pr := range results {
		require.Equal(t, results[0], pr)
	}
}

func TestGetFailureIsNotCached(t *testing.T) {
	p := NewPairs()
	boom := errors.New("generation failed")
	fail := func(ctx context.Context) (Pair, error) { return Pair{}, boom }
	ok := func(ctx context.Context) (Pair, error) {
		return Pair{TrueStatement: "t", FalseStatement: "f"}, nil
	}

	_, err := p.Get(context.Background(), "cells", fail)
	require.ErrorIs(t, err, boom)
	require.Zero(t, p.Len())

	pr, err := p.Get(context.Background(), "cells", ok)
	require.NoError(t, err)
	require.Equal(t, "t", pr.TrueStatement)
	require.Equal(t, 1, p.Len())
}
