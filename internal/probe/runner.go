package probe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/agentmatch/pkg/logger"
)

// Run executes a complete probe against cfg.BaseURL.
func Run(ctx context.Context, cfg Config) (Summary, error) {
	cfg.normalize()
	log := logger.Get().Named("probe")
	start := time.Now()
	c := newClient(cfg.BaseURL, cfg.UserID, cfg.Timeout)

	log.Info(ctx, "starting agentmatch probe",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("user", cfg.UserID),
		logger.Int("dispatches", cfg.Dispatches),
		logger.Duration("pollInterval", cfg.PollInterval))

	if err := c.get(ctx, "/healthz", nil); err != nil {
		return Summary{}, fmt.Errorf("service health check failed: %w", err)
	}

	var matches []Match
	q := url.Values{"limit": {strconv.Itoa(cfg.Dispatches)}}
	if err := c.get(ctx, "/matches?"+q.Encode(), &matches); err != nil {
		return Summary{}, fmt.Errorf("match retrieval failed: %w", err)
	}
	if len(matches) == 0 {
		return Summary{}, ErrNoMatches
	}

	summary := Summary{Matches: len(matches), Jobs: make([]JobResult, 0, len(matches))}
	for _, m := range matches {
		res := JobResult{CandidateID: m.ID}
		var accepted struct {
			ID string `json:"id"`
		}
		err := c.post(ctx, "/dispatch", map[string]string{"match_id": m.ID}, &accepted)
		var apiErr *apiError
		switch {
		case errors.As(err, &apiErr):
			res.Refused = apiErr.Code
			summary.Refused++
			log.Warn(ctx, "dispatch refused", logger.String("candidate", m.ID), logger.String("code", apiErr.Code))
		case err != nil:
			return summary, fmt.Errorf("dispatch toward %s failed: %w", m.ID, err)
		default:
			res.JobID = accepted.ID
			summary.Accepted++
			log.Info(ctx, "dispatch accepted",
				logger.String("candidate", m.ID),
				logger.String("job", accepted.ID),
				logger.Int("matchScore", m.MatchScore))
		}
		summary.Jobs = append(summary.Jobs, res)
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.MaxWait)
	defer cancel()
	g, gctx := errgroup.WithContext(waitCtx)
	for i := range summary.Jobs {
		if summary.Jobs[i].JobID == "" {
			continue
		}
		job := &summary.Jobs[i]
		g.Go(func() error {
			return follow(gctx, c, cfg.PollInterval, job)
		})
	}
	err := g.Wait()

	for _, j := range summary.Jobs {
		switch j.Final.Status {
		case "completed":
			summary.Completed++
		case "failed":
			summary.Failed++
		}
	}
	summary.Duration = time.Since(start)

	log.Info(ctx, "probe finished",
		logger.Int("matches", summary.Matches),
		logger.Int("accepted", summary.Accepted),
		logger.Int("refused", summary.Refused),
		logger.Int("completed", summary.Completed),
		logger.Int("failed", summary.Failed),
		logger.Duration("duration", summary.Duration))
	return summary, err
}

// follow polls one job until it is terminal, then fetches its report.
func follow(ctx context.Context, c *client, interval time.Duration, job *JobResult) error {
	path := "/dispatch/" + url.PathEscape(job.JobID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		var st JobStatus
		if err := c.get(ctx, path, &st); err != nil {
			return fmt.Errorf("poll %s: %w", job.JobID, err)
		}
		job.Polls++
		if st.Progress < last {
			return fmt.Errorf("%w: job %s went from %d to %d", ErrProgressRegressed, job.JobID, last, st.Progress)
		}
		last = st.Progress
		job.Final = st

		switch st.Status {
		case "completed":
			var report Report
			if err := c.get(ctx, path+"/report", &report); err != nil {
				return fmt.Errorf("report %s: %w", job.JobID, err)
			}
			job.Report = &report
			return nil
		case "failed":
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", job.JobID, ctx.Err())
		case <-ticker.C:
		}
	}
}
