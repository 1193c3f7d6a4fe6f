package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/agentmatch/internal/adapters/repository"
	"github.com/okian/agentmatch/internal/domain/dispatch"
	"github.com/okian/agentmatch/internal/domain/inflight"
	"github.com/okian/agentmatch/internal/domain/model"
	"github.com/okian/agentmatch/internal/domain/quota"
	. "github.com/smartystreets/goconvey/convey"
)

// generatorFunc adapts a function to dispatch.Generator.
type generatorFunc func(ctx context.Context, subject, candidate model.Profile, progress dispatch.ProgressFunc) (model.Outcome, error)

func (f generatorFunc) Generate(ctx context.Context, s, c model.Profile, p dispatch.ProgressFunc) (model.Outcome, error) {
	return f(ctx, s, c, p)
}

// captureQueue records tasks; it reports full once capacity is reached.
type captureQueue struct {
	mu       sync.Mutex
	tasks    []model.DispatchTask
	capacity int
}

func (q *captureQueue) Enqueue(_ context.Context, t model.DispatchTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.tasks) >= q.capacity {
		return false
	}
	q.tasks = append(q.tasks, t)
	return true
}

func completeProfile(id string) model.Profile {
	return model.Profile{
		ID:           id,
		Name:         "Name " + id,
		Needs:        []model.Need{{Priority: model.PriorityHigh, Tags: []string{"go"}}},
		Capabilities: []model.Capability{{Skill: "Go development", Level: model.LevelExpert}},
		Network:      model.Network{Size: 10},
		Behavior:     model.Behavior{ActivityScore: 70},
	}
}

func okOutcome() model.Outcome {
	return model.Outcome{
		Conversation: model.Conversation{ID: "conv-1", Messages: []model.Message{
			{Speaker: "a", Content: "hello"}, {Speaker: "b", Content: "hi"},
		}},
		Analysis: model.Analysis{Summary: "good fit", KeyPoints: []string{"go"}, Sentiment: "positive", NextSteps: "meet"},
	}
}

type fixture struct {
	orch    *dispatch.Orchestrator
	tracker *dispatch.Tracker
	jobs    *repository.JobStore
	history *repository.HistoryStore
	guard   inflight.Guard
	quota   *quota.Manager
	queue   *captureQueue
}

func newFixture(limit int, gen dispatch.Generator, opts ...dispatch.Option) *fixture {
	ctx := context.Background()
	profiles := repository.NewProfileStore(
		completeProfile("u1"), completeProfile("u2"), completeProfile("u3"), completeProfile("u4"),
		model.Profile{ID: "sparse", Needs: []model.Need{{}}},
	)
	f := &fixture{
		jobs:    repository.NewJobStore(ctx),
		history: repository.NewHistoryStore(),
		guard:   inflight.NewInMemoryGuard(),
		quota: quota.NewManager(quota.NewMemoryStore(), quota.WithLimitProvider(
			quota.LimitFunc(func(context.Context, string) (int, error) { return limit, nil }))),
		queue: &captureQueue{},
	}
	seq := atomic.Int64{}
	opts = append([]dispatch.Option{
		dispatch.WithRetryBackoff(0),
		dispatch.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
	}, opts...)
	f.orch = dispatch.NewOrchestrator(dispatch.Deps{
		Profiles:  profiles,
		Jobs:      f.jobs,
		History:   f.history,
		Guard:     f.guard,
		Quota:     f.quota,
		Generator: gen,
		Queue:     f.queue,
	}, opts...)
	f.tracker = dispatch.NewTracker(f.jobs)
	return f
}

func succeed() dispatch.Generator {
	return generatorFunc(func(_ context.Context, _, _ model.Profile, p dispatch.ProgressFunc) (model.Outcome, error) {
		p(30, "talking")
		p(60, "analyzing")
		return okOutcome(), nil
	})
}

func TestOrchestrator_Dispatch(t *testing.T) {
	ctx := context.Background()

	Convey("Given an orchestrator with a daily limit of 1", t, func() {
		f := newFixture(1, succeed())

		Convey("When dispatching twice to different candidates", func() {
			job, err1 := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u2", AgentID: "agent-7"})
			_, err2 := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u3"})

			Convey("Then the first is queued and the second hits the quota", func() {
				So(err1, ShouldBeNil)
				So(job.State, ShouldEqual, model.JobPending)
				So(job.Progress, ShouldEqual, 0)
				So(job.Message, ShouldEqual, dispatch.MessageQueued)
				So(job.AgentID, ShouldEqual, "agent-7")
				So(errors.Is(err2, dispatch.ErrQuotaExhausted), ShouldBeTrue)
				So(f.queue.tasks, ShouldHaveLength, 1)
				So(f.queue.tasks[0].JobID, ShouldEqual, job.ID)
			})

			Convey("And the rejected pair is not left in flight", func() {
				So(f.guard.Held(ctx, "u1", "u3"), ShouldBeFalse)
				So(f.guard.Held(ctx, "u1", "u2"), ShouldBeTrue)
			})
		})

		Convey("When the subject profile is incomplete", func() {
			_, err := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "sparse", CandidateID: "u2"})

			Convey("Then it is rejected without spending quota", func() {
				So(err, ShouldEqual, dispatch.ErrProfileIncomplete)
				q, _ := f.quota.Current(ctx, "sparse")
				So(q.Used, ShouldEqual, 0)
			})
		})

		Convey("When the subject is unknown", func() {
			_, err := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "ghost", CandidateID: "u2"})
			So(err, ShouldEqual, dispatch.ErrProfileIncomplete)
		})

		Convey("When the candidate is unknown", func() {
			_, err := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "ghost"})
			So(err, ShouldEqual, dispatch.ErrCandidateNotFound)
		})

		Convey("When dispatching to oneself or with empty ids", func() {
			_, err := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u1"})
			So(err, ShouldEqual, dispatch.ErrInvalidRequest)
			_, err = f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1"})
			So(err, ShouldEqual, dispatch.ErrInvalidRequest)
		})
	})

	Convey("Given a pair that is already in flight", t, func() {
		f := newFixture(5, succeed())
		_, err := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u2"})
		So(err, ShouldBeNil)

		Convey("When dispatching the same pair again", func() {
			_, err := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u2"})

			Convey("Then it is a duplicate and no quota is spent", func() {
				So(err, ShouldEqual, dispatch.ErrDuplicateInFlight)
				q, _ := f.quota.Current(ctx, "u1")
				So(q.Used, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a full queue", t, func() {
		f := newFixture(5, succeed())
		f.queue.capacity = 1
		_, err := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u2"})
		So(err, ShouldBeNil)

		Convey("When another dispatch cannot be queued", func() {
			_, err := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u3"})

			Convey("Then it reports backpressure and undoes everything", func() {
				So(err, ShouldEqual, dispatch.ErrBackpressure)
				q, _ := f.quota.Current(ctx, "u1")
				So(q.Used, ShouldEqual, 1)
				So(f.guard.Held(ctx, "u1", "u3"), ShouldBeFalse)
				So(f.jobs.ListBySubject(ctx, "u1"), ShouldHaveLength, 1)
			})
		})
	})
}

func TestOrchestrator_ConcurrentDispatch(t *testing.T) {
	Convey("Given many concurrent dispatches of the same pair", t, func() {
		f := newFixture(10, succeed())
		ctx := context.Background()

		var wg sync.WaitGroup
		var accepted, duplicates atomic.Int64
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u2"})
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, dispatch.ErrDuplicateInFlight):
					duplicates.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one job exists", func() {
			So(accepted.Load(), ShouldEqual, 1)
			So(duplicates.Load(), ShouldEqual, 29)
			So(f.jobs.ListBySubject(ctx, "u1"), ShouldHaveLength, 1)
			q, _ := f.quota.Current(ctx, "u1")
			So(q.Used, ShouldEqual, 1)
		})
	})
}

func TestOrchestrator_Execute(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queued job and a succeeding generator", t, func() {
		var observed []int
		var mu sync.Mutex
		var f *fixture
		gen := generatorFunc(func(_ context.Context, _, _ model.Profile, p dispatch.ProgressFunc) (model.Outcome, error) {
			for _, pct := range []int{0, 20, 10, 50, 99, 120} {
				p(pct, "")
				st, _ := f.tracker.Status(ctx, "id-1")
				mu.Lock()
				observed = append(observed, st.Progress)
				mu.Unlock()
			}
			return okOutcome(), nil
		})
		f = newFixture(5, gen)
		job, err := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u2"})
		So(err, ShouldBeNil)
		So(job.ID, ShouldEqual, "id-1")

		Convey("When a worker executes it", func() {
			So(f.orch.Execute(ctx, job.ID), ShouldBeNil)

			Convey("Then progress never decreases and stays in the running window", func() {
				So(observed, ShouldResemble, []int{5, 20, 20, 50, 95, 95})
			})

			Convey("Then the job is completed with a result", func() {
				got, err := f.tracker.Job(ctx, job.ID)
				So(err, ShouldBeNil)
				So(got.State, ShouldEqual, model.JobCompleted)
				So(got.Progress, ShouldEqual, 100)
				So(got.Result, ShouldNotBeNil)
				So(got.Result.AgentName, ShouldEqual, "Name u2")
				So(got.Result.Score.Total, ShouldBeGreaterThan, 0)
				So(got.StartedAt, ShouldNotBeNil)
				So(got.CompletedAt, ShouldNotBeNil)
			})

			Convey("Then the report is available", func() {
				r, err := f.tracker.Report(ctx, job.ID)
				So(err, ShouldBeNil)
				So(r.Summary, ShouldEqual, "good fit")
				So(r.ConversationID, ShouldEqual, "conv-1")
				So(r.MessageCount, ShouldEqual, 2)
			})

			Convey("Then history records a success and the pair is free", func() {
				entries, _ := f.history.List(ctx, "u1", 0)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Success, ShouldBeTrue)
				So(entries[0].JobID, ShouldEqual, job.ID)
				So(f.guard.Held(ctx, "u1", "u2"), ShouldBeFalse)
			})

			Convey("Then executing again is rejected", func() {
				So(f.orch.Execute(ctx, job.ID), ShouldNotBeNil)
			})
		})

		Convey("When the report is requested before execution", func() {
			_, err := f.tracker.Report(ctx, job.ID)
			So(err, ShouldEqual, dispatch.ErrNotReady)
			st, err := f.tracker.Status(ctx, job.ID)
			So(err, ShouldBeNil)
			So(st.State, ShouldEqual, model.JobPending)
		})
	})

	Convey("Given a generator that exceeds its timeout", t, func() {
		gen := generatorFunc(func(context.Context, model.Profile, model.Profile, dispatch.ProgressFunc) (model.Outcome, error) {
			time.Sleep(200 * time.Millisecond)
			return okOutcome(), nil
		})
		f := newFixture(5, gen, dispatch.WithGeneratorTimeout(20*time.Millisecond), dispatch.WithRetries(3))
		job, err := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u2"})
		So(err, ShouldBeNil)

		So(f.orch.Execute(ctx, job.ID), ShouldBeNil)

		Convey("Then polling shows failed with a message", func() {
			st, err := f.tracker.Status(ctx, job.ID)
			So(err, ShouldBeNil)
			So(st.State, ShouldEqual, model.JobFailed)
			So(st.Message, ShouldNotBeEmpty)
		})

		Convey("Then the report is unavailable rather than partial", func() {
			_, err := f.tracker.Report(ctx, job.ID)
			So(err, ShouldEqual, dispatch.ErrJobFailed)
		})

		Convey("Then quota stays spent and the pair is free", func() {
			q, _ := f.quota.Current(ctx, "u1")
			So(q.Used, ShouldEqual, 1)
			So(f.guard.Held(ctx, "u1", "u2"), ShouldBeFalse)
			entries, _ := f.history.List(ctx, "u1", 0)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].Success, ShouldBeFalse)
		})
	})

	Convey("Given a generator that fails transiently", t, func() {
		var calls atomic.Int64
		gen := generatorFunc(func(context.Context, model.Profile, model.Profile, dispatch.ProgressFunc) (model.Outcome, error) {
			if calls.Add(1) == 1 {
				return model.Outcome{}, errors.New("upstream 503")
			}
			return okOutcome(), nil
		})
		f := newFixture(5, gen, dispatch.WithRetries(1))
		job, _ := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u2"})
		So(f.orch.Execute(ctx, job.ID), ShouldBeNil)

		Convey("Then the retry succeeds", func() {
			st, _ := f.tracker.Status(ctx, job.ID)
			So(st.State, ShouldEqual, model.JobCompleted)
			So(calls.Load(), ShouldEqual, 2)
		})
	})

	Convey("Given a generator returning malformed output", t, func() {
		var calls atomic.Int64
		gen := generatorFunc(func(context.Context, model.Profile, model.Profile, dispatch.ProgressFunc) (model.Outcome, error) {
			calls.Add(1)
			return model.Outcome{}, fmt.Errorf("parse: %w", dispatch.ErrMalformedOutput)
		})
		f := newFixture(5, gen, dispatch.WithRetries(3))
		job, _ := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u2"})
		So(f.orch.Execute(ctx, job.ID), ShouldBeNil)

		Convey("Then it fails without retrying", func() {
			st, _ := f.tracker.Status(ctx, job.ID)
			So(st.State, ShouldEqual, model.JobFailed)
			So(calls.Load(), ShouldEqual, 1)
		})
	})

	Convey("Given a caller context that is cancelled", t, func() {
		f := newFixture(5, succeed())
		job, _ := f.orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u2"})
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		Convey("Then the job still runs to completion", func() {
			So(f.orch.Execute(cctx, job.ID), ShouldBeNil)
			st, _ := f.tracker.Status(ctx, job.ID)
			So(st.State, ShouldEqual, model.JobCompleted)
		})
	})

	Convey("Given an unknown job id", t, func() {
		f := newFixture(5, succeed())

		Convey("Then execute and queries report not found", func() {
			So(f.orch.Execute(ctx, "nope"), ShouldEqual, dispatch.ErrJobNotFound)
			_, err := f.tracker.Status(ctx, "nope")
			So(err, ShouldEqual, dispatch.ErrJobNotFound)
			_, err = f.tracker.Report(ctx, "nope")
			So(err, ShouldEqual, dispatch.ErrJobNotFound)
		})
	})
}

func TestOrchestrator_HistoryDate(t *testing.T) {
	ctx := context.Background()

	Convey("Given a job reserved just before midnight", t, func() {
		var mu sync.Mutex
		now := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
		clock := func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
		history := repository.NewHistoryStore()
		jobs := repository.NewJobStore(ctx)
		orch := dispatch.NewOrchestrator(dispatch.Deps{
			Profiles:  repository.NewProfileStore(completeProfile("u1"), completeProfile("u2")),
			Jobs:      jobs,
			History:   history,
			Guard:     inflight.NewInMemoryGuard(),
			Quota:     quota.NewManager(quota.NewMemoryStore(), quota.WithClock(clock)),
			Generator: succeed(),
			Queue:     &captureQueue{},
		}, dispatch.WithRetryBackoff(0))

		job, err := orch.Dispatch(ctx, dispatch.Request{SubjectID: "u1", CandidateID: "u2"})
		So(err, ShouldBeNil)
		So(job.QuotaDate, ShouldEqual, "2024-03-01")

		Convey("When it finishes after midnight", func() {
			mu.Lock()
			now = now.Add(2 * time.Minute)
			mu.Unlock()
			So(orch.Execute(ctx, job.ID), ShouldBeNil)

			Convey("Then history files it under the day its quota was spent", func() {
				entries, err := history.List(ctx, "u1", 0)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Date, ShouldEqual, "2024-03-01")
			})
		})
	})
}
