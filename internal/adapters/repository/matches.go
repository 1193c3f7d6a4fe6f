package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/agentmatch/internal/domain/ranking"
)

type cachedMatches struct {
	ranked     []ranking.Ranked
	computedAt time.Time
}

// MatchCache keeps the latest ranking per user.
type MatchCache struct {
	mu     sync.RWMutex
	byUser map[string]cachedMatches
}

// NewMatchCache returns an empty cache.
func NewMatchCache() *MatchCache {
	return &MatchCache{byUser: make(map[string]cachedMatches)}
}

// Get returns a copy of the cached ranking for userID.
func (c *MatchCache) Get(_ context.Context, userID string) ([]ranking.Ranked, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byUser[userID]
	if !ok {
		return nil, time.Time{}, false
	}
	out := make([]ranking.Ranked, len(m.ranked))
	copy(out, m.ranked)
	return out, m.computedAt, true
}

// Put replaces the cached ranking for userID.
func (c *MatchCache) Put(_ context.Context, userID string, ranked []ranking.Ranked, at time.Time) {
	cp := make([]ranking.Ranked, len(ranked))
	copy(cp, ranked)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUser[userID] = cachedMatches{ranked: cp, computedAt: at}
}

// Invalidate drops the cached ranking for userID.
func (c *MatchCache) Invalidate(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byUser, userID)
}

// Len returns the number of cached users.
func (c *MatchCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byUser)
}
