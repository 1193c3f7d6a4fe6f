package dispatch

import (
	"context"
	"errors"

	"github.com/okian/agentmatch/internal/domain/model"
)

// JobReader is the read side of JobStore.
type JobReader interface {
	Get(ctx context.Context, id string) (model.DispatchJob, error)
}

// Status is the pollable view of a job.
type Status struct {
	State    model.JobState `json:"status"`
	Progress int            `json:"progress"`
	Message  string         `json:"message"`
}

// Tracker answers status and report queries. It never waits on a generator.
type Tracker struct {
	jobs JobReader
}

// NewTracker creates a Tracker.
func NewTracker(jobs JobReader) *Tracker {
	return &Tracker{jobs: jobs}
}

// Job returns a copy of the job.
func (t *Tracker) Job(ctx context.Context, jobID string) (model.DispatchJob, error) {
	job, err := t.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.DispatchJob{}, ErrJobNotFound
		}
		return model.DispatchJob{}, err
	}
	return job, nil
}

// Status returns the job's state, progress and message.
func (t *Tracker) Status(ctx context.Context, jobID string) (Status, error) {
	job, err := t.Job(ctx, jobID)
	if err != nil {
		return Status{}, err
	}
	return Status{State: job.State, Progress: job.Progress, Message: job.Message}, nil
}

// Report summarizes a completed job. Pending and running jobs yield
// ErrNotReady; failed jobs yield ErrJobFailed.
func (t *Tracker) Report(ctx context.Context, jobID string) (model.Report, error) {
	job, err := t.Job(ctx, jobID)
	if err != nil {
		return model.Report{}, err
	}

	switch job.State {
	case model.JobCompleted:
	case model.JobFailed:
		return model.Report{}, ErrJobFailed
	default:
		return model.Report{}, ErrNotReady
	}
	if job.Result == nil {
		return model.Report{}, ErrNotReady
	}

	res := job.Result
	report := model.Report{
		AgentName:      res.AgentName,
		Summary:        res.Analysis.Summary,
		KeyPoints:      res.Analysis.KeyPoints,
		Sentiment:      res.Analysis.Sentiment,
		NextSteps:      res.Analysis.NextSteps,
		ConversationID: res.Conversation.ID,
		MessageCount:   len(res.Conversation.Messages),
	}
	if report.KeyPoints == nil {
		report.KeyPoints = []string{}
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		report.Duration = int(job.CompletedAt.Sub(*job.StartedAt).Seconds())
	}
	return report, nil
}
