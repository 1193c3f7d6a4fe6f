package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/agentmatch/internal/domain/model"
)

// SettingsStore holds per-user dispatch settings.
type SettingsStore struct {
	mu       sync.RWMutex
	settings map[string]model.Settings
}

// NewSettingsStore returns a store seeded with settings.
func NewSettingsStore(seed ...model.Settings) *SettingsStore {
	s := &SettingsStore{settings: make(map[string]model.Settings, len(seed))}
	for _, st := range seed {
		s.settings[st.UserID] = st
	}
	return s
}

// Get returns the settings for userID. found is false when none were saved.
func (s *SettingsStore) Get(_ context.Context, userID string) (model.Settings, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settings[userID]
	return st, ok, nil
}

// Put saves settings.
func (s *SettingsStore) Put(_ context.Context, st model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[st.UserID] = st
	return nil
}

// AutoDispatchUsers returns the users that opted into auto-dispatch, ordered by id.
func (s *SettingsStore) AutoDispatchUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0)
	for id, st := range s.settings {
		if st.AutoDispatch {
			out = append(out, id)
		}
	}
	s.mu.RUnlock()

	sort.Strings(out)
	return out, nil
}
