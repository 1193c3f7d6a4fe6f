package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/agentmatch/internal/domain/model"
	"github.com/okian/agentmatch/internal/domain/ranking"
)

const fixtureYAML = `
profiles:
  - id: u1
    name: Ada
    role: CTO
    industry: Fintech
    needs:
      - category: funding
        priority: high
        tags: [invest]
    capabilities:
      - skill: Go development
        level: expert
        verified: true
    network:
      connections: [u3]
      size: 120
    behavior:
      activity_score: 80
      avg_response_minutes: 30
      meeting_mode: online
  - id: u2
    name: Grace
settings:
  - user_id: u1
    daily_limit: 3
    auto_dispatch: true
    preferences:
      target_industry: fintech
`

func TestParseFixture(t *testing.T) {
	f, err := ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)
	require.Len(t, f.Profiles, 2)

	p := f.Profiles[0]
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, model.PriorityHigh, p.Needs[0].Priority)
	assert.Equal(t, []string{"invest"}, p.Needs[0].Tags)
	assert.True(t, p.Capabilities[0].Verified)
	assert.Equal(t, 120, p.Network.Size)
	assert.Equal(t, model.MeetingOnline, p.Behavior.MeetingMode)
	assert.InDelta(t, 30.0, p.Behavior.AvgResponseMinutes, 1e-9)

	require.Len(t, f.Settings, 1)
	assert.Equal(t, 3, f.Settings[0].DailyLimit)
	assert.Equal(t, "fintech", f.Settings[0].Preferences.TargetIndustry)
}

func TestParseFixture_Invalid(t *testing.T) {
	_, err := ParseFixture([]byte("profiles:\n  - name: nobody\n"))
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = ParseFixture([]byte("profiles:\n  - id: a\n  - id: a\n"))
	assert.ErrorIs(t, err, ErrDuplicateID)

	_, err = ParseFixture([]byte("profiles: {"))
	assert.Error(t, err)
}

func TestLoadFixture_MissingFile(t *testing.T) {
	_, err := LoadFixture(t.TempDir() + "/missing.yaml")
	assert.Error(t, err)
}

func TestProfileStore(t *testing.T) {
	ctx := context.Background()
	s := NewProfileStore(model.Profile{ID: "b"}, model.Profile{ID: "a"})

	p, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", p.ID)

	_, err = s.Get(ctx, "zzz")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, s.Put(ctx, model.Profile{ID: "c"}))
	assert.ErrorIs(t, s.Put(ctx, model.Profile{ID: " "}), ErrInvalidProfile)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[2].ID)
	assert.Equal(t, 3, s.Count(ctx))
}

func TestJobStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(ctx)
	defer s.Close()

	job := model.DispatchJob{ID: "j1", SubjectID: "u1", CandidateID: "u2", State: model.JobPending}
	require.NoError(t, s.Create(ctx, job))
	assert.ErrorIs(t, s.Create(ctx, job), ErrDuplicateID)

	updated, err := s.Update(ctx, "j1", func(j *model.DispatchJob) error {
		j.State = model.JobRunning
		j.Progress = 40
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 40, updated.Progress)

	// progress never goes backwards
	updated, err = s.Update(ctx, "j1", func(j *model.DispatchJob) error {
		j.Progress = 10
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 40, updated.Progress)

	// a failing mutation is not committed
	boom := errors.New("boom")
	_, err = s.Update(ctx, "j1", func(j *model.DispatchJob) error {
		j.Message = "half-written"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Empty(t, got.Message)

	_, err = s.Update(ctx, "j1", func(j *model.DispatchJob) error {
		j.State = model.JobCompleted
		j.Progress = 100
		return nil
	})
	require.NoError(t, err)

	_, err = s.Update(ctx, "j1", func(j *model.DispatchJob) error {
		j.State = model.JobFailed
		return nil
	})
	assert.ErrorIs(t, err, model.ErrJobTerminal)

	got, err = s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.State)

	_, err = s.Update(ctx, "missing", func(*model.DispatchJob) error { return nil })
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "j1"))
	_, err = s.Get(ctx, "j1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestJobStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(ctx)
	defer s.Close()

	require.NoError(t, s.Create(ctx, model.DispatchJob{ID: "j1", State: model.JobPending}))
	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	got.State = model.JobFailed

	again, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, again.State)
}

func TestJobStore_ListAndCounts(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(ctx)
	defer s.Close()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, model.DispatchJob{ID: "b", SubjectID: "u1", State: model.JobPending, CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.Create(ctx, model.DispatchJob{ID: "a", SubjectID: "u1", State: model.JobRunning, CreatedAt: base}))
	require.NoError(t, s.Create(ctx, model.DispatchJob{ID: "c", SubjectID: "u2", State: model.JobPending, CreatedAt: base}))

	jobs := s.ListBySubject(ctx, "u1")
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, "b", jobs[1].ID)

	counts := s.Counts(ctx)
	assert.Equal(t, 2, counts[model.JobPending])
	assert.Equal(t, 1, counts[model.JobRunning])
}

func TestJobStore_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s := NewJobStore(ctx, WithRetention(time.Hour), WithSweepInterval(time.Hour), WithJobClock(func() time.Time { return now }))
	defer s.Close()

	old := now.Add(-2 * time.Hour)
	recent := now.Add(-time.Minute)
	require.NoError(t, s.Create(ctx, model.DispatchJob{ID: "old", State: model.JobCompleted, CompletedAt: &old}))
	require.NoError(t, s.Create(ctx, model.DispatchJob{ID: "recent", State: model.JobFailed, CompletedAt: &recent}))
	require.NoError(t, s.Create(ctx, model.DispatchJob{ID: "running", State: model.JobRunning}))

	assert.Equal(t, 1, s.Sweep())
	_, err := s.Get(ctx, "old")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.Get(ctx, "recent")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "running")
	assert.NoError(t, err)
}

func TestJobStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(ctx)
	defer s.Close()
	require.NoError(t, s.Create(ctx, model.DispatchJob{ID: "j", State: model.JobRunning}))

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			_, _ = s.Update(ctx, "j", func(j *model.DispatchJob) error {
				j.Progress = p
				return nil
			})
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)
}

func TestHistoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewHistoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, model.HistoryEntry{ID: "1", UserID: "u1", TargetID: "a", Success: true, CreatedAt: base}))
	require.NoError(t, s.Append(ctx, model.HistoryEntry{ID: "2", UserID: "u1", TargetID: "b", Success: false, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.Append(ctx, model.HistoryEntry{ID: "3", UserID: "u2", TargetID: "a", Success: true, CreatedAt: base}))

	list, err := s.List(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[0].ID)

	list, err = s.List(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	total, successes, err := s.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, successes)

	targets, err := s.SuccessfulTargets(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, targets, "a")
	assert.NotContains(t, targets, "b")
}

func TestSettingsStore(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(model.Settings{UserID: "b", AutoDispatch: true})

	_, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, model.Settings{UserID: "a", DailyLimit: 2, AutoDispatch: true}))
	st, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, st.DailyLimit)

	users, err := s.AutoDispatchUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, users)
}

func TestMatchCache(t *testing.T) {
	ctx := context.Background()
	c := NewMatchCache()

	_, _, ok := c.Get(ctx, "u1")
	assert.False(t, ok)

	at := time.Now()
	ranked := []ranking.Ranked{{Profile: model.Profile{ID: "x"}}}
	c.Put(ctx, "u1", ranked, at)
	ranked[0].Profile.ID = "mutated"

	got, gotAt, ok := c.Get(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, "x", got[0].Profile.ID)
	assert.True(t, gotAt.Equal(at))
	assert.Equal(t, 1, c.Len())

	c.Invalidate(ctx, "u1")
	_, _, ok = c.Get(ctx, "u1")
	assert.False(t, ok)
}
