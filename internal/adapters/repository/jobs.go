package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/agentmatch/internal/domain/model"
)

// JobStore keeps dispatch jobs in memory. All reads return copies and every
// mutation runs under one lock, so a terminal job can never change again.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.DispatchJob

	retention     time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewJobStore constructs a JobStore. When a retention is set, a background
// goroutine removes expired terminal jobs until ctx is done or Close is called.
func NewJobStore(ctx context.Context, opts ...JobOption) *JobStore {
	s := &JobStore{
		jobs:          make(map[string]*model.DispatchJob),
		sweepInterval: time.Minute,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retention > 0 {
		s.startSweeper(ctx)
	}
	return s
}

// Create stores a new job.
func (s *JobStore) Create(_ context.Context, job model.DispatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, ErrDuplicateID)
	}
	j := job.Clone()
	s.jobs[job.ID] = &j
	return nil
}

// Get returns a copy of the job.
func (s *JobStore) Get(_ context.Context, id string) (model.DispatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.DispatchJob{}, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	return j.Clone(), nil
}

// Update applies fn to a working copy and commits it only when fn succeeds.
func (s *JobStore) Update(_ context.Context, id string, fn func(*model.DispatchJob) error) (model.DispatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return model.DispatchJob{}, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	if j.State.IsTerminal() {
		return j.Clone(), model.ErrJobTerminal
	}

	work := j.Clone()
	if err := fn(&work); err != nil {
		return j.Clone(), err
	}
	if work.Progress < j.Progress {
		work.Progress = j.Progress
	}
	work.ID = j.ID
	*j = work
	return j.Clone(), nil
}

// Delete removes a job. Deleting an unknown job is a no-op.
func (s *JobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

// ListBySubject returns copies of the subject's jobs, oldest first.
func (s *JobStore) ListBySubject(_ context.Context, subjectID string) []model.DispatchJob {
	s.mu.RLock()
	out := make([]model.DispatchJob, 0)
	for _, j := range s.jobs {
		if j.SubjectID == subjectID {
			out = append(out, j.Clone())
		}
	}
	s.mu.RUnlock()

	sortJobs(out)
	return out
}

// Counts returns the number of jobs per state.
func (s *JobStore) Counts(_ context.Context) map[model.JobState]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.JobState]int, 4)
	for _, j := range s.jobs {
		out[j.State]++
	}
	return out
}

// Close stops the sweeper.
func (s *JobStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *JobStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Sweep removes terminal jobs that completed before the retention window.
// It returns the number of removed jobs.
func (s *JobStore) Sweep() int {
	if s.retention <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, j := range s.jobs {
		if j.State.IsTerminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}
