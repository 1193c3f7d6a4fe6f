// Package ranking orders a candidate pool against a subject profile.
package ranking

import (
	"context"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/agentmatch/internal/domain/model"
	"github.com/okian/agentmatch/internal/domain/scoring"
)

// Scorer computes the score of a candidate for a subject.
type Scorer interface {
	Score(subject, candidate model.Profile) model.MatchScore
}

// Ranked is a scored candidate.
type Ranked struct {
	Profile model.Profile    `json:"profile"`
	Score   model.MatchScore `json:"score"`
}

// Options narrow and size a ranking.
type Options struct {
	// Exclude lists candidate ids that must not appear in the result.
	Exclude map[string]struct{}
	// Limit truncates the result. Zero or negative means no truncation.
	Limit       int
	Preferences model.Preferences
}

// Selector ranks candidates.
type Selector struct {
	scorer            Scorer
	parallelThreshold int
	concurrency       int
	observe           func(candidates int, d time.Duration)
}

// New creates a Selector with configuration options.
func New(opts ...Option) *Selector {
	s := &Selector{
		scorer:            scoring.New(),
		parallelThreshold: 256,
		concurrency:       runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// Rank filters, scores and sorts candidates. The subject itself is always
// excluded. Ties are broken by confidence and then by candidate id.
func (s *Selector) Rank(ctx context.Context, subject model.Profile, candidates []model.Profile, opts Options) ([]Ranked, error) {
	start := time.Now()

	pool := make([]model.Profile, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == subject.ID {
			continue
		}
		if _, skip := opts.Exclude[c.ID]; skip {
			continue
		}
		if !matchesPreferences(c, opts.Preferences) {
			continue
		}
		pool = append(pool, c)
	}

	out := make([]Ranked, len(pool))
	if err := s.scoreAll(ctx, subject, pool, out); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return less(out[i], out[j])
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	if s.observe != nil {
		s.observe(len(pool), time.Since(start))
	}
	return out, nil
}

func (s *Selector) scoreAll(ctx context.Context, subject model.Profile, pool []model.Profile, out []Ranked) error {
	if len(pool) < s.parallelThreshold || s.concurrency == 1 {
		for i, c := range pool {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = Ranked{Profile: c, Score: s.scorer.Score(subject, c)}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(pool) + s.concurrency - 1) / s.concurrency
	for lo := 0; lo < len(pool); lo += chunk {
		hi := lo + chunk
		if hi > len(pool) {
			hi = len(pool)
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				out[i] = Ranked{Profile: pool[i], Score: s.scorer.Score(subject, pool[i])}
			}
			return nil
		})
	}
	return g.Wait()
}

// less orders by total desc, confidence desc, id asc.
func less(a, b Ranked) bool {
	if a.Score.Total != b.Score.Total {
		return a.Score.Total > b.Score.Total
	}
	if a.Score.Confidence != b.Score.Confidence {
		return a.Score.Confidence > b.Score.Confidence
	}
	return a.Profile.ID < b.Profile.ID
}

func matchesPreferences(p model.Profile, prefs model.Preferences) bool {
	if !containsFold(p.Industry, prefs.TargetIndustry) {
		return false
	}
	return containsFold(p.Location, prefs.TargetLocation)
}

// containsFold reports whether want is empty or a case-insensitive substring of s.
func containsFold(s, want string) bool {
	want = strings.TrimSpace(want)
	if want == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(want))
}
