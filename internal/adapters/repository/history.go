package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/agentmatch/internal/domain/model"
)

// HistoryStore is an append-only in-memory log of dispatch attempts.
type HistoryStore struct {
	mu      sync.RWMutex
	entries map[string][]model.HistoryEntry // by user, in append order
}

// NewHistoryStore returns an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{entries: make(map[string][]model.HistoryEntry)}
}

// Append records an entry.
func (s *HistoryStore) Append(_ context.Context, e model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.UserID] = append(s.entries[e.UserID], e)
	return nil
}

// List returns up to limit entries for userID, newest first. limit <= 0 returns all.
func (s *HistoryStore) List(_ context.Context, userID string, limit int) ([]model.HistoryEntry, error) {
	s.mu.RLock()
	src := s.entries[userID]
	out := make([]model.HistoryEntry, len(src))
	copy(out, src)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Summary returns the attempt and success counts for userID.
func (s *HistoryStore) Summary(_ context.Context, userID string) (total, successes int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries[userID] {
		total++
		if e.Success {
			successes++
		}
	}
	return total, successes, nil
}

// SuccessfulTargets returns the ids userID was successfully matched with.
func (s *HistoryStore) SuccessfulTargets(_ context.Context, userID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for _, e := range s.entries[userID] {
		if e.Success {
			out[e.TargetID] = struct{}{}
		}
	}
	return out, nil
}

func sortJobs(jobs []model.DispatchJob) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}
