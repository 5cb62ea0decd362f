// Package quiz memoizes generated true/false statement pairs per subject.
// The pairing is correctness-relevant, not just a speedup: once a false
// statement has been shown for a quiz question, re-render cycles must see
// the same pair, or the user's committed answer no longer matches what is
// on screen.
package quiz

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Pair is one generated statement pair for a subject.
type Pair struct {
	SubjectID      string
	TrueStatement  string
	FalseStatement string
}

// GenerateFunc produces the pair for a subject on first use. It typically
// issues two concurrent non-streaming generations.
type GenerateFunc func(ctx context.Context) (Pair, error)

// Pairs is an append-only memo of statement pairs keyed by subject id.
// Entries are never invalidated; the memo lives as long as the process.
// Concurrent first calls for the same subject coalesce into a single
// generator invocation, the same way session creation deduplicates.
type Pairs struct {
	mu     sync.RWMutex
	byID   map[string]Pair
	flight singleflight.Group
}

// NewPairs constructs an empty memo.
func NewPairs() *Pairs {
	return &Pairs{byID: make(map[string]Pair)}
}

// Get returns the pair for subjectID, invoking generate exactly once per
// subject across all callers. A failed generation stores nothing, so a
// later call retries.
func (p *Pairs) Get(ctx context.Context, subjectID string, generate GenerateFunc) (Pair, error) {
	p.mu.RLock()
	pr, ok := p.byID[subjectID]
	p.mu.RUnlock()
	if ok {
		return pr, nil
	}

	// singleflight shares the winning caller's execution; losers wait for
	// its result instead of generating a second pair.
	v, err, _ := p.flight.Do(subjectID, func() (any, error) {
		p.mu.RLock()
		pr, ok := p.byID[subjectID]
		p.mu.RUnlock()
		if ok {
			return pr, nil
		}
		pr, err := generate(ctx)
		if err != nil {
			return Pair{}, err
		}
		pr.SubjectID = subjectID
		p.mu.Lock()
		p.byID[subjectID] = pr
		p.mu.Unlock()
		return pr, nil
	})
	if err != nil {
		return Pair{}, err
	}
	return v.(Pair), nil
}

// Len reports how many pairs are memoized.
func (p *Pairs) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}
