package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/agentmatch/internal/domain/inflight"
	"github.com/okian/agentmatch/internal/domain/model"
	"github.com/okian/agentmatch/internal/domain/scoring"
	"github.com/okian/agentmatch/pkg/logger"
	"github.com/okian/agentmatch/pkg/metrics"
)

// Job lifecycle constants.
const (
	MinCompleteness = 50

	progressStarted  = 5
	progressCeiling  = 95
	progressComplete = 100

	defaultGeneratorTimeout = 60 * time.Second
	defaultRetries          = 1
	defaultRetryBackoff     = 500 * time.Millisecond
)

// Job messages shown to polling clients.
const (
	MessageQueued    = "queued"
	MessageMatching  = "analyzing match"
	MessageCompleted = "completed"
)

// Dispatch outcomes used as metric labels.
const (
	OutcomeAccepted     = "accepted"
	OutcomeIncomplete   = "profile_incomplete"
	OutcomeNotFound     = "not_found"
	OutcomeInvalid      = "invalid"
	OutcomeDuplicate    = "duplicate_in_flight"
	OutcomeQuota        = "quota_exhausted"
	OutcomeBackpressure = "backpressure"
	OutcomeError        = "error"
)

// Request asks for one dispatch from subject toward candidate.
type Request struct {
	SubjectID   string
	CandidateID string
	AgentID     string
}

// Deps are the collaborators an Orchestrator needs.
type Deps struct {
	Profiles  ProfileStore
	Jobs      JobStore
	History   HistoryStore
	Guard     inflight.Guard
	Quota     Reserver
	Generator Generator
	Queue     Enqueuer
}

// Orchestrator creates dispatch jobs and drives them to a terminal state.
type Orchestrator struct {
	Deps

	scorer       Scorer
	timeout      time.Duration
	retries      int
	retryBackoff time.Duration
	now          func() time.Time
	newID        func() string
	logger       logger.Logger
}

// NewOrchestrator creates an Orchestrator with configuration options.
func NewOrchestrator(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		Deps:         deps,
		scorer:       scoring.New(),
		timeout:      defaultGeneratorTimeout,
		retries:      defaultRetries,
		retryBackoff: defaultRetryBackoff,
		now:          time.Now,
		newID:        uuid.NewString,
		logger:       logger.Get().Named("dispatch"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Dispatch validates the request, reserves quota and queues a pending job.
// The returned job is a snapshot; poll the Tracker for progress.
func (o *Orchestrator) Dispatch(ctx context.Context, req Request) (model.DispatchJob, error) {
	job, err := o.dispatch(ctx, req)
	metrics.RecordDispatchRequest(outcomeOf(err))
	if err != nil {
		o.logger.Debug(ctx, "dispatch rejected",
			logger.String("subject", req.SubjectID),
			logger.String("candidate", req.CandidateID),
			logger.Error(err))
		return model.DispatchJob{}, err
	}
	o.logger.Info(ctx, "dispatch queued",
		logger.String("job_id", job.ID),
		logger.String("subject", req.SubjectID),
		logger.String("candidate", req.CandidateID))
	return job, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, req Request) (model.DispatchJob, error) {
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	req.CandidateID = strings.TrimSpace(req.CandidateID)
	if req.SubjectID == "" || req.CandidateID == "" {
		return model.DispatchJob{}, ErrInvalidRequest
	}

	subject, err := o.Profiles.Get(ctx, req.SubjectID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return model.DispatchJob{}, ErrProfileIncomplete
	case err != nil:
		return model.DispatchJob{}, fmt.Errorf("load subject: %w", err)
	}
	if scoring.Completeness(subject) < MinCompleteness {
		return model.DispatchJob{}, ErrProfileIncomplete
	}

	if req.CandidateID == req.SubjectID {
		return model.DispatchJob{}, ErrInvalidRequest
	}
	if _, err := o.Profiles.Get(ctx, req.CandidateID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.DispatchJob{}, ErrCandidateNotFound
		}
		return model.DispatchJob{}, fmt.Errorf("load candidate: %w", err)
	}

	if !o.Guard.Acquire(ctx, req.SubjectID, req.CandidateID) {
		return model.DispatchJob{}, ErrDuplicateInFlight
	}

	q, err := o.Quota.TryReserve(ctx, req.SubjectID)
	if err != nil {
		o.Guard.Release(ctx, req.SubjectID, req.CandidateID)
		return model.DispatchJob{}, err
	}

	job := model.DispatchJob{
		ID:          o.newID(),
		SubjectID:   req.SubjectID,
		CandidateID: req.CandidateID,
		AgentID:     req.AgentID,
		State:       model.JobPending,
		Message:     MessageQueued,
		QuotaDate:   q.Date,
		CreatedAt:   o.now(),
	}
	if err := o.Jobs.Create(ctx, job); err != nil {
		o.rollback(ctx, req, q, "")
		return model.DispatchJob{}, fmt.Errorf("create job: %w", err)
	}
	metrics.RecordJobTransition(string(model.JobPending))

	if !o.Queue.Enqueue(ctx, model.DispatchTask{JobID: job.ID, EnqueuedAt: job.CreatedAt}) {
		o.rollback(ctx, req, q, job.ID)
		return model.DispatchJob{}, ErrBackpressure
	}
	return job.Clone(), nil
}

// rollback undoes a reservation that never became a running job.
func (o *Orchestrator) rollback(ctx context.Context, req Request, q model.Quota, jobID string) {
	if jobID != "" {
		if err := o.Jobs.Delete(ctx, jobID); err != nil {
			o.logger.Warn(ctx, "delete unqueued job", logger.String("job_id", jobID), logger.Error(err))
		}
	}
	if err := o.Quota.Release(ctx, q); err != nil {
		o.logger.Warn(ctx, "release quota", logger.String("user", req.SubjectID), logger.Error(err))
	} else {
		metrics.RecordQuotaRelease()
	}
	o.Guard.Release(ctx, req.SubjectID, req.CandidateID)
}

// Execute runs a pending job to a terminal state. It is called by workers and
// is detached from the caller's cancellation. The returned error reports why
// the job could not be started; generator failures are recorded on the job.
func (o *Orchestrator) Execute(ctx context.Context, jobID string) error {
	ctx = context.WithoutCancel(ctx)

	job, err := o.Jobs.Update(ctx, jobID, func(j *model.DispatchJob) error {
		if j.State != model.JobPending {
			return fmt.Errorf("job %s is %s, not pending", j.ID, j.State)
		}
		started := o.now()
		j.State = model.JobRunning
		j.Progress = progressStarted
		j.Message = MessageMatching
		j.StartedAt = &started
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("start job: %w", err)
	}
	metrics.RecordJobTransition(string(model.JobRunning))

	subject, candidate, err := o.loadPair(ctx, job)
	if err != nil {
		o.fail(ctx, job, "profile unavailable", err)
		return nil
	}

	score := o.scorer.Score(subject, candidate)
	metrics.RecordMatchScore(score.Total)

	outcome, err := o.generate(ctx, subject, candidate, func(percent int, message string) {
		o.advance(ctx, jobID, percent, message)
	})
	if err != nil {
		o.fail(ctx, job, failureMessage(err), err)
		return nil
	}

	o.complete(ctx, job, model.DispatchResult{
		Conversation: outcome.Conversation,
		Analysis:     outcome.Analysis,
		Score:        score,
		AgentName:    candidate.DisplayName(),
	})
	return nil
}

func (o *Orchestrator) loadPair(ctx context.Context, job model.DispatchJob) (model.Profile, model.Profile, error) {
	subject, err := o.Profiles.Get(ctx, job.SubjectID)
	if err != nil {
		return model.Profile{}, model.Profile{}, fmt.Errorf("load subject: %w", err)
	}
	candidate, err := o.Profiles.Get(ctx, job.CandidateID)
	if err != nil {
		return model.Profile{}, model.Profile{}, fmt.Errorf("load candidate: %w", err)
	}
	return subject, candidate, nil
}

type generated struct {
	outcome model.Outcome
	err     error
}

// generate calls the generator with a hard per-attempt deadline and retries
// failures that are neither timeouts nor malformed output.
func (o *Orchestrator) generate(ctx context.Context, subject, candidate model.Profile, progress ProgressFunc) (model.Outcome, error) {
	var lastErr error
	for attempt := 0; attempt <= o.retries; attempt++ {
		if attempt > 0 {
			metrics.RecordGeneratorRetry()
			if o.retryBackoff > 0 {
				time.Sleep(o.retryBackoff * time.Duration(attempt))
			}
		}

		out, err := o.attempt(ctx, subject, candidate, progress)
		if err == nil {
			return out, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, ErrGeneratorTimeout):
			metrics.RecordGeneratorError(metrics.GeneratorErrorTimeout)
			return model.Outcome{}, err
		case errors.Is(err, ErrMalformedOutput):
			metrics.RecordGeneratorError(metrics.GeneratorErrorMalformed)
			return model.Outcome{}, err
		default:
			metrics.RecordGeneratorError(metrics.GeneratorErrorFailure)
			o.logger.Warn(ctx, "generator attempt failed",
				logger.Int("attempt", attempt+1), logger.Error(err))
		}
	}
	return model.Outcome{}, lastErr
}

func (o *Orchestrator) attempt(ctx context.Context, subject, candidate model.Profile, progress ProgressFunc) (model.Outcome, error) {
	actx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan generated, 1)
	go func() {
		out, err := o.Generator.Generate(actx, subject, candidate, progress)
		done <- generated{outcome: out, err: err}
	}()

	select {
	case res := <-done:
		metrics.RecordGeneratorLatency(float64(time.Since(start).Milliseconds()))
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return model.Outcome{}, fmt.Errorf("%w: %w", ErrGeneratorTimeout, res.err)
		}
		return res.outcome, res.err
	case <-actx.Done():
		metrics.RecordGeneratorLatency(float64(time.Since(start).Milliseconds()))
		return model.Outcome{}, fmt.Errorf("%w after %s", ErrGeneratorTimeout, o.timeout)
	}
}

// advance moves progress forward inside the running window. Late callbacks
// for finished jobs are dropped.
func (o *Orchestrator) advance(ctx context.Context, jobID string, percent int, message string) {
	if percent < progressStarted {
		percent = progressStarted
	}
	if percent > progressCeiling {
		percent = progressCeiling
	}
	_, err := o.Jobs.Update(ctx, jobID, func(j *model.DispatchJob) error {
		if j.State != model.JobRunning {
			return model.ErrJobTerminal
		}
		if percent > j.Progress {
			j.Progress = percent
		}
		if message != "" {
			j.Message = message
		}
		return nil
	})
	if err != nil && !errors.Is(err, model.ErrJobTerminal) {
		o.logger.Debug(ctx, "progress update dropped", logger.String("job_id", jobID), logger.Error(err))
	}
}

func (o *Orchestrator) complete(ctx context.Context, job model.DispatchJob, result model.DispatchResult) {
	final, err := o.Jobs.Update(ctx, job.ID, func(j *model.DispatchJob) error {
		done := o.now()
		j.State = model.JobCompleted
		j.Progress = progressComplete
		j.Message = MessageCompleted
		j.Result = &result
		j.CompletedAt = &done
		return nil
	})
	if err != nil {
		o.logger.Error(ctx, "complete job", logger.String("job_id", job.ID), logger.Error(err))
		o.Guard.Release(ctx, job.SubjectID, job.CandidateID)
		return
	}
	o.finish(ctx, final, true, result.Score.PrimaryReason(), result.Score.Total)
}

func (o *Orchestrator) fail(ctx context.Context, job model.DispatchJob, message string, cause error) {
	final, err := o.Jobs.Update(ctx, job.ID, func(j *model.DispatchJob) error {
		done := o.now()
		j.State = model.JobFailed
		j.Message = message
		j.CompletedAt = &done
		return nil
	})
	if err != nil {
		o.logger.Error(ctx, "fail job", logger.String("job_id", job.ID), logger.Error(err))
		o.Guard.Release(ctx, job.SubjectID, job.CandidateID)
		return
	}
	o.logger.Warn(ctx, "dispatch failed", logger.String("job_id", job.ID), logger.Error(cause))
	o.finish(ctx, final, false, message, 0)
}

// finish records history for a terminal job and frees its pair.
// Quota stays spent.
func (o *Orchestrator) finish(ctx context.Context, job model.DispatchJob, success bool, reason string, score int) {
	metrics.RecordJobTransition(string(job.State))
	if job.StartedAt != nil && job.CompletedAt != nil {
		metrics.RecordJobDuration(float64(job.CompletedAt.Sub(*job.StartedAt).Milliseconds()))
	}

	date := job.QuotaDate
	if date == "" {
		date = o.Quota.Today()
	}
	entry := model.HistoryEntry{
		ID:         o.newID(),
		UserID:     job.SubjectID,
		TargetID:   job.CandidateID,
		JobID:      job.ID,
		Date:       date,
		Success:    success,
		Reason:     reason,
		MatchScore: score,
		CreatedAt:  o.now(),
	}
	if err := o.History.Append(ctx, entry); err != nil {
		o.logger.Error(ctx, "append history", logger.String("job_id", job.ID), logger.Error(err))
	}

	o.Guard.Release(ctx, job.SubjectID, job.CandidateID)
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrGeneratorTimeout):
		return "conversation timed out"
	case errors.Is(err, ErrMalformedOutput):
		return "conversation analysis was malformed"
	default:
		return "conversation failed"
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, ErrProfileIncomplete):
		return OutcomeIncomplete
	case errors.Is(err, ErrCandidateNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrInvalidRequest):
		return OutcomeInvalid
	case errors.Is(err, ErrDuplicateInFlight):
		return OutcomeDuplicate
	case errors.Is(err, ErrQuotaExhausted):
		return OutcomeQuota
	case errors.Is(err, ErrBackpressure):
		return OutcomeBackpressure
	default:
		return OutcomeError
	}
}
