package quota

import (
	"context"
	"sync"

	"github.com/okian/agentmatch/internal/domain/model"
)

type key struct {
	user string
	date string
}

// MemoryStore keeps quota records in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[key]model.Quota
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[key]model.Quota)}
}

// Reserve implements Store. The check and increment happen under one lock.
func (s *MemoryStore) Reserve(_ context.Context, userID, date string, limit int) (model.Quota, bool, error) {
	k := key{user: userID, date: date}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.records[k]
	if !ok {
		q = model.Quota{UserID: userID, Date: date}
	}
	q.Limit = limit
	if q.Used >= limit {
		s.records[k] = q
		return q, false, nil
	}
	q.Used++
	s.records[k] = q
	return q, true, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, userID, date string) (model.Quota, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.records[key{user: userID, date: date}]
	return q, ok, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, userID, date string) error {
	k := key{user: userID, date: date}

	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.records[k]; ok && q.Used > 0 {
		q.Used--
		s.records[k] = q
	}
	return nil
}
