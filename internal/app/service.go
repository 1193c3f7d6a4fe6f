// Package service wires matching, quota and dispatch into the operations the
// HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/okian/agentmatch/internal/adapters/generator/simulated"
	"github.com/okian/agentmatch/internal/adapters/mq/queue"
	"github.com/okian/agentmatch/internal/adapters/mq/worker"
	"github.com/okian/agentmatch/internal/adapters/repository"
	"github.com/okian/agentmatch/internal/domain/dispatch"
	"github.com/okian/agentmatch/internal/domain/inflight"
	"github.com/okian/agentmatch/internal/domain/model"
	"github.com/okian/agentmatch/internal/domain/quota"
	"github.com/okian/agentmatch/internal/domain/ranking"
	"github.com/okian/agentmatch/internal/domain/scoring"
	"github.com/okian/agentmatch/pkg/logger"
	"github.com/okian/agentmatch/pkg/metrics"
)

const (
	defaultMaxMatchLimit = 50
	recentHistoryLimit   = 10
)

// Auto-dispatch run results used as metric labels.
const (
	AutoDisabled    = "disabled"
	AutoNoQuota     = "quota_exhausted"
	AutoIncomplete  = "profile_incomplete"
	AutoNoCandidate = "no_candidates"
	AutoDispatched  = "dispatched"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// History is the dispatch history the service reads and the orchestrator appends to.
type History interface {
	dispatch.HistoryStore
	List(ctx context.Context, userID string, limit int) ([]model.HistoryEntry, error)
	Summary(ctx context.Context, userID string) (total, successes int, err error)
	SuccessfulTargets(ctx context.Context, userID string) (map[string]struct{}, error)
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	DailyLimit   *int
	AutoDispatch *bool
	Preferences  *model.Preferences
}

// AutoDispatchResult summarizes one auto-dispatch run.
type AutoDispatchResult struct {
	MatchedCount int      `json:"matched_count"`
	JobIDs       []string `json:"job_ids"`
	Message      string   `json:"message"`
}

// Service implements the API dependencies for agentmatch.
type Service struct {
	mu sync.RWMutex

	// Core components
	profiles     *repository.ProfileStore
	settings     *repository.SettingsStore
	jobs         *repository.JobStore
	matches      *repository.MatchCache
	history      History
	guard        inflight.Guard
	quotaStore   quota.Store
	quota        *quota.Manager
	selector     *ranking.Selector
	generator    dispatch.Generator
	orchestrator *dispatch.Orchestrator
	tracker      *dispatch.Tracker
	queue        *queue.InMemoryQueue
	workerPool   *worker.Pool

	// Configuration
	fixture          repository.Fixture
	workerCount      int
	queueSize        int
	defaultLimit     int
	maxMatchLimit    int
	generatorTimeout time.Duration
	generatorRetries int
	autoInterval     time.Duration
	jobRetention     time.Duration
	loc              *time.Location
	now              func() time.Time

	// State
	started bool
	cancel  context.CancelFunc
	bg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        1024,
		defaultLimit:     model.DefaultDailyLimit,
		maxMatchLimit:    defaultMaxMatchLimit,
		generatorTimeout: time.Minute,
		generatorRetries: 1,
		jobRetention:     24 * time.Hour,
		loc:              time.UTC,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the components and starts the worker pool and scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting agentmatch service...")

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.profiles = repository.NewProfileStore(s.fixture.Profiles...)
	s.settings = repository.NewSettingsStore(s.fixture.Settings...)
	s.jobs = repository.NewJobStore(bgCtx,
		repository.WithRetention(s.jobRetention),
		repository.WithJobClock(s.now),
	)
	s.matches = repository.NewMatchCache()
	if s.history == nil {
		s.history = repository.NewHistoryStore()
	}
	if s.quotaStore == nil {
		s.quotaStore = quota.NewMemoryStore()
	}
	if s.generator == nil {
		s.generator = simulated.New()
	}

	s.guard = inflight.NewInMemoryGuard(inflight.WithOnChange(metrics.UpdateInflightPairs))
	s.quota = quota.NewManager(s.quotaStore,
		quota.WithLimitProvider(quota.LimitFunc(s.dailyLimit)),
		quota.WithDefaultLimit(s.defaultLimit),
		quota.WithLocation(s.loc),
		quota.WithClock(s.now),
		quota.WithReserveObserver(metrics.RecordQuotaReservation),
	)
	scorer := scoring.New()
	s.selector = ranking.New(
		ranking.WithScorer(scorer),
		ranking.WithObserver(func(n int, d time.Duration) {
			metrics.RecordRanking(n, float64(d.Milliseconds()))
		}),
	)

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.orchestrator = dispatch.NewOrchestrator(dispatch.Deps{
		Profiles:  s.profiles,
		Jobs:      s.jobs,
		History:   s.history,
		Guard:     s.guard,
		Quota:     s.quota,
		Generator: s.generator,
		Queue:     s.queue,
	},
		dispatch.WithScorer(scorer),
		dispatch.WithGeneratorTimeout(s.generatorTimeout),
		dispatch.WithRetries(s.generatorRetries),
		dispatch.WithClock(s.now),
	)
	s.tracker = dispatch.NewTracker(s.jobs)

	s.workerPool = worker.NewPool(s.workerCount, s.queue, s.orchestrator)
	s.workerPool.Start(bgCtx)

	if s.autoInterval > 0 {
		s.bg.Add(1)
		go s.runScheduler(bgCtx)
	}

	s.started = true
	s.logger.Info(ctx, "agentmatch service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("profiles", len(s.fixture.Profiles)),
		logger.Duration("autoDispatchInterval", s.autoInterval),
	)
	return nil
}

// Stop drains queued jobs and stops background work. Jobs still running when
// ctx expires are abandoned.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	pool, jobs, cancel := s.workerPool, s.jobs, s.cancel
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping agentmatch service...")

	var errs []error
	if err := pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	cancel()
	s.bg.Wait()
	if err := jobs.Close(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info(ctx, "agentmatch service stopped")
	return errors.Join(errs...)
}

func (s *Service) dailyLimit(ctx context.Context, userID string) (int, error) {
	st, found, err := s.settings.Get(ctx, userID)
	if err != nil || !found {
		return 0, err
	}
	return st.DailyLimit, nil
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Dispatch starts an outreach attempt from userID toward candidateID.
func (s *Service) Dispatch(ctx context.Context, userID, candidateID, agentID string) (model.DispatchJob, error) {
	if err := s.ready(); err != nil {
		return model.DispatchJob{}, err
	}
	return s.orchestrator.Dispatch(ctx, dispatch.Request{
		SubjectID:   userID,
		CandidateID: candidateID,
		AgentID:     agentID,
	})
}

// Status returns the progress of one of userID's jobs.
func (s *Service) Status(ctx context.Context, userID, jobID string) (dispatch.Status, error) {
	if _, err := s.ownedJob(ctx, userID, jobID); err != nil {
		return dispatch.Status{}, err
	}
	return s.tracker.Status(ctx, jobID)
}

// Report returns the report of one of userID's completed jobs.
func (s *Service) Report(ctx context.Context, userID, jobID string) (model.Report, error) {
	if _, err := s.ownedJob(ctx, userID, jobID); err != nil {
		return model.Report{}, err
	}
	return s.tracker.Report(ctx, jobID)
}

// ownedJob hides other users' jobs behind ErrJobNotFound.
func (s *Service) ownedJob(ctx context.Context, userID, jobID string) (model.DispatchJob, error) {
	if err := s.ready(); err != nil {
		return model.DispatchJob{}, err
	}
	job, err := s.tracker.Job(ctx, jobID)
	if err != nil {
		return model.DispatchJob{}, err
	}
	if job.SubjectID != userID {
		return model.DispatchJob{}, dispatch.ErrJobNotFound
	}
	return job, nil
}

// MaxMatchLimit is the largest accepted match page size.
func (s *Service) MaxMatchLimit() int {
	return s.maxMatchLimit
}

// Calculate re-ranks every profile for userID and caches the result.
// It returns the number of ranked candidates.
func (s *Service) Calculate(ctx context.Context, userID string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	ranked, err := s.rank(ctx, userID, 0)
	if err != nil {
		return 0, err
	}
	s.matches.Put(ctx, userID, ranked, s.now())
	return len(ranked), nil
}

// Matches returns up to limit ranked candidates for userID, computing them on
// a cache miss. Candidates reached or in flight since the ranking are skipped.
func (s *Service) Matches(ctx context.Context, userID string, limit int) ([]ranking.Ranked, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.maxMatchLimit {
		limit = s.maxMatchLimit
	}

	ranked, _, ok := s.matches.Get(ctx, userID)
	if !ok {
		if _, err := s.Calculate(ctx, userID); err != nil {
			return nil, err
		}
		ranked, _, _ = s.matches.Get(ctx, userID)
	}

	exclude, err := s.exclusions(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ranking.Ranked, 0, min(limit, len(ranked)))
	for _, r := range ranked {
		if _, skip := exclude[r.Profile.ID]; skip {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Service) rank(ctx context.Context, userID string, limit int) ([]ranking.Ranked, error) {
	subject, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	pool, err := s.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	exclude, err := s.exclusions(ctx, userID)
	if err != nil {
		return nil, err
	}
	st, err := s.settingsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.selector.Rank(ctx, subject, pool, ranking.Options{
		Exclude:     exclude,
		Limit:       limit,
		Preferences: st.Preferences,
	})
}

// exclusions are candidates already reached successfully plus those with a
// job in flight.
func (s *Service) exclusions(ctx context.Context, userID string) (map[string]struct{}, error) {
	exclude, err := s.history.SuccessfulTargets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if exclude == nil {
		exclude = make(map[string]struct{})
	}
	for _, job := range s.jobs.ListBySubject(ctx, userID) {
		if !job.State.IsTerminal() {
			exclude[job.CandidateID] = struct{}{}
		}
	}
	return exclude, nil
}

// Settings returns userID's settings, or defaults when none were saved.
func (s *Service) Settings(ctx context.Context, userID string) (model.Settings, error) {
	if err := s.ready(); err != nil {
		return model.Settings{}, err
	}
	return s.settingsFor(ctx, userID)
}

func (s *Service) settingsFor(ctx context.Context, userID string) (model.Settings, error) {
	st, found, err := s.settings.Get(ctx, userID)
	if err != nil {
		return model.Settings{}, err
	}
	if !found {
		st = model.Settings{UserID: userID}
	}
	st.DailyLimit = model.ClampDailyLimit(st.DailyLimit, s.defaultLimit)
	return st, nil
}

// UpdateSettings applies patch to userID's settings. Changing preferences
// drops the cached ranking.
func (s *Service) UpdateSettings(ctx context.Context, userID string, patch SettingsPatch) (model.Settings, error) {
	if err := s.ready(); err != nil {
		return model.Settings{}, err
	}
	st, err := s.settingsFor(ctx, userID)
	if err != nil {
		return model.Settings{}, err
	}
	if patch.DailyLimit != nil {
		st.DailyLimit = model.ClampDailyLimit(*patch.DailyLimit, s.defaultLimit)
	}
	if patch.AutoDispatch != nil {
		st.AutoDispatch = *patch.AutoDispatch
	}
	if patch.Preferences != nil {
		st.Preferences = *patch.Preferences
		s.matches.Invalidate(ctx, userID)
	}
	if err := s.settings.Put(ctx, st); err != nil {
		return model.Settings{}, err
	}
	s.logger.Info(ctx, "settings updated",
		logger.String("user", userID),
		logger.Int("dailyLimit", st.DailyLimit),
		logger.Bool("autoDispatch", st.AutoDispatch))
	return st, nil
}

// DispatchStats summarizes userID's quota and history.
func (s *Service) DispatchStats(ctx context.Context, userID string) (model.DispatchStats, error) {
	if err := s.ready(); err != nil {
		return model.DispatchStats{}, err
	}
	q, err := s.quota.Current(ctx, userID)
	if err != nil {
		return model.DispatchStats{}, err
	}
	total, successes, err := s.history.Summary(ctx, userID)
	if err != nil {
		return model.DispatchStats{}, err
	}
	recent, err := s.history.List(ctx, userID, recentHistoryLimit)
	if err != nil {
		return model.DispatchStats{}, err
	}
	if recent == nil {
		recent = []model.HistoryEntry{}
	}

	stats := model.DispatchStats{
		TodayUsed:     q.Used,
		TodayLimit:    q.Limit,
		TotalAttempts: total,
		Recent:        recent,
	}
	if total > 0 {
		stats.SuccessRate = int(math.Round(float64(successes) * 100 / float64(total)))
	}
	return stats, nil
}

// AutoDispatch dispatches toward the best-ranked candidates until today's
// quota is used up. Users that have not enabled auto-dispatch get an empty
// result with an explanatory message.
func (s *Service) AutoDispatch(ctx context.Context, userID string) (AutoDispatchResult, error) {
	res, label, err := s.autoDispatch(ctx, userID)
	if err != nil {
		metrics.RecordAutoDispatchRun("error")
		return AutoDispatchResult{}, err
	}
	metrics.RecordAutoDispatchRun(label)
	return res, nil
}

func (s *Service) autoDispatch(ctx context.Context, userID string) (AutoDispatchResult, string, error) {
	res := AutoDispatchResult{JobIDs: []string{}}
	if err := s.ready(); err != nil {
		return res, "", err
	}

	st, err := s.settingsFor(ctx, userID)
	if err != nil {
		return res, "", err
	}
	if !st.AutoDispatch {
		res.Message = "auto dispatch is disabled"
		return res, AutoDisabled, nil
	}

	q, err := s.quota.Current(ctx, userID)
	if err != nil {
		return res, "", err
	}
	if q.Remaining() == 0 {
		res.Message = "daily quota exhausted"
		return res, AutoNoQuota, nil
	}

	subject, err := s.profiles.Get(ctx, userID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return res, "", err
	}
	if err != nil || scoring.Completeness(subject) < dispatch.MinCompleteness {
		res.Message = fmt.Sprintf("complete your profile first (at least %d%%)", dispatch.MinCompleteness)
		return res, AutoIncomplete, nil
	}

	candidates, err := s.rank(ctx, userID, q.Remaining())
	if err != nil {
		return res, "", err
	}
	if len(candidates) == 0 {
		res.Message = "no suitable candidates"
		return res, AutoNoCandidate, nil
	}

	for _, c := range candidates {
		job, err := s.Dispatch(ctx, userID, c.Profile.ID, "auto")
		switch {
		case err == nil:
			res.JobIDs = append(res.JobIDs, job.ID)
		case errors.Is(err, dispatch.ErrQuotaExhausted), errors.Is(err, dispatch.ErrBackpressure):
			s.logger.Info(ctx, "auto dispatch stopped early",
				logger.String("user", userID), logger.Error(err))
			res.MatchedCount = len(res.JobIDs)
			res.Message = fmt.Sprintf("dispatched to %d candidates", res.MatchedCount)
			return res, AutoDispatched, nil
		default:
			s.logger.Warn(ctx, "auto dispatch skipped candidate",
				logger.String("user", userID),
				logger.String("candidate", c.Profile.ID),
				logger.Error(err))
		}
	}

	res.MatchedCount = len(res.JobIDs)
	res.Message = fmt.Sprintf("dispatched to %d candidates", res.MatchedCount)
	return res, AutoDispatched, nil
}

func (s *Service) runScheduler(ctx context.Context) {
	defer s.bg.Done()

	ticker := time.NewTicker(s.autoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAutoDispatchRound(ctx)
		}
	}
}

func (s *Service) runAutoDispatchRound(ctx context.Context) {
	users, err := s.settings.AutoDispatchUsers(ctx)
	if err != nil {
		s.logger.Error(ctx, "list auto dispatch users", logger.Error(err))
		return
	}
	for _, user := range users {
		if ctx.Err() != nil {
			return
		}
		res, err := s.AutoDispatch(ctx, user)
		if err != nil {
			s.logger.Error(ctx, "auto dispatch failed", logger.String("user", user), logger.Error(err))
			continue
		}
		s.logger.Debug(ctx, "auto dispatch run",
			logger.String("user", user),
			logger.Int("matched", res.MatchedCount),
			logger.String("message", res.Message))
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		profiles := s.profiles.Count(ctx)
		jobs := make(map[string]int)
		for state, n := range s.jobs.Counts(ctx) {
			jobs[string(state)] = n
		}

		stats["queueLength"] = queueLen
		stats["activeWorkers"] = s.workerPool.Active()
		stats["totalProfiles"] = profiles
		stats["inflightPairs"] = s.guard.Size()
		stats["cachedMatches"] = s.matches.Len()
		stats["jobs"] = jobs

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateProfilesTotal(profiles)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
