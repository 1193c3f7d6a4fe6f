package repository

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/okian/agentmatch/internal/domain/model"
	"github.com/okian/agentmatch/pkg/metrics"
)

// Fixture is the on-disk seed for profiles and user settings.
type Fixture struct {
	Profiles []model.Profile  `yaml:"profiles"`
	Settings []model.Settings `yaml:"settings"`
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture and rejects profiles without an id.
func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Profiles))
	for i, p := range f.Profiles {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return Fixture{}, fmt.Errorf("profile #%d: %w: missing id", i, ErrInvalidProfile)
		}
		if _, dup := seen[id]; dup {
			return Fixture{}, fmt.Errorf("profile %s: %w", id, ErrDuplicateID)
		}
		seen[id] = struct{}{}
		f.Profiles[i].ID = id
	}
	return f, nil
}

// ProfileStore holds profile snapshots in memory.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]model.Profile
}

// NewProfileStore returns a store seeded with profiles.
func NewProfileStore(profiles ...model.Profile) *ProfileStore {
	s := &ProfileStore{profiles: make(map[string]model.Profile, len(profiles))}
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}
	metrics.UpdateProfilesTotal(len(s.profiles))
	return s
}

// Get returns the profile with id.
func (s *ProfileStore) Get(_ context.Context, id string) (model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return model.Profile{}, fmt.Errorf("profile %s: %w", id, model.ErrNotFound)
	}
	return p, nil
}

// List returns all profiles ordered by id.
func (s *ProfileStore) List(_ context.Context) ([]model.Profile, error) {
	s.mu.RLock()
	out := make([]model.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put inserts or replaces a profile.
func (s *ProfileStore) Put(_ context.Context, p model.Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidProfile)
	}
	s.mu.Lock()
	s.profiles[p.ID] = p
	n := len(s.profiles)
	s.mu.Unlock()

	metrics.UpdateProfilesTotal(n)
	return nil
}

// Count returns the number of profiles.
func (s *ProfileStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
