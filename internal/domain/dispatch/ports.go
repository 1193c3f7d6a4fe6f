// Package dispatch runs AI-mediated outreach attempts as polled background jobs.
//
// A dispatch moves pending -> running -> completed|failed. Every transition goes
// through JobStore.Update so a push notifier could observe the same stream.
package dispatch

import (
	"context"

	"github.com/okian/agentmatch/internal/domain/model"
)

// ProfileStore supplies profile snapshots. Get returns model.ErrNotFound for unknown ids.
type ProfileStore interface {
	Get(ctx context.Context, id string) (model.Profile, error)
}

// JobStore persists dispatch jobs.
type JobStore interface {
	Create(ctx context.Context, job model.DispatchJob) error
	// Get returns a copy of the job or model.ErrNotFound.
	Get(ctx context.Context, id string) (model.DispatchJob, error)
	// Update applies fn to the stored job under the store's lock and returns
	// the updated copy. Terminal jobs are rejected with model.ErrJobTerminal.
	Update(ctx context.Context, id string, fn func(*model.DispatchJob) error) (model.DispatchJob, error)
	Delete(ctx context.Context, id string) error
}

// HistoryStore records dispatch attempts.
type HistoryStore interface {
	Append(ctx context.Context, entry model.HistoryEntry) error
}

// ProgressFunc receives generator progress. Values are clamped by the caller.
type ProgressFunc func(percent int, message string)

// Generator produces a conversation and its analysis for a pair of profiles.
// Implementations should honour ctx and report malformed output with ErrMalformedOutput.
type Generator interface {
	Generate(ctx context.Context, subject, candidate model.Profile, progress ProgressFunc) (model.Outcome, error)
}

// Enqueuer hands tasks to workers without blocking. It returns false when full.
type Enqueuer interface {
	Enqueue(ctx context.Context, task model.DispatchTask) bool
}

// Reserver consumes daily quota.
type Reserver interface {
	TryReserve(ctx context.Context, userID string) (model.Quota, error)
	Release(ctx context.Context, q model.Quota) error
	Today() string
}

// Scorer computes a MatchScore.
type Scorer interface {
	Score(subject, candidate model.Profile) model.MatchScore
}
