// Package inflight guards against concurrent dispatches toward the same pair.
package inflight

import (
	"context"
	"sync"
	"sync/atomic"
)

// Guard tracks (subject, candidate) pairs with a non-terminal dispatch job.
type Guard interface {
	// Acquire atomically marks the pair as in flight.
	// Returns false when the pair is already held.
	Acquire(ctx context.Context, subjectID, candidateID string) bool

	// Release frees the pair. Releasing a pair that is not held is a no-op.
	Release(ctx context.Context, subjectID, candidateID string)

	// Held reports whether the pair is currently in flight.
	Held(ctx context.Context, subjectID, candidateID string) bool

	Size() int64
}

type pair struct {
	subject   string
	candidate string
}

type inMemoryGuard struct {
	mu       sync.Mutex
	held     map[pair]struct{}
	size     atomic.Int64
	onChange func(size int64)
}

// NewInMemoryGuard creates a new in-memory guard with configuration options.
func NewInMemoryGuard(opts ...Option) Guard {
	g := &inMemoryGuard{
		held: make(map[pair]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *inMemoryGuard) Acquire(_ context.Context, subjectID, candidateID string) bool {
	key := pair{subject: subjectID, candidate: candidateID}

	g.mu.Lock()
	if _, exists := g.held[key]; exists {
		g.mu.Unlock()
		return false
	}
	g.held[key] = struct{}{}
	size := g.size.Add(1)
	g.mu.Unlock()

	g.notify(size)
	return true
}

func (g *inMemoryGuard) Release(_ context.Context, subjectID, candidateID string) {
	key := pair{subject: subjectID, candidate: candidateID}

	g.mu.Lock()
	if _, exists := g.held[key]; !exists {
		g.mu.Unlock()
		return
	}
	delete(g.held, key)
	size := g.size.Add(-1)
	g.mu.Unlock()

	g.notify(size)
}

func (g *inMemoryGuard) Held(_ context.Context, subjectID, candidateID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, exists := g.held[pair{subject: subjectID, candidate: candidateID}]
	return exists
}

// Size returns the number of pairs currently in flight.
func (g *inMemoryGuard) Size() int64 {
	return g.size.Load()
}

func (g *inMemoryGuard) notify(size int64) {
	if g.onChange != nil {
		g.onChange(size)
	}
}
