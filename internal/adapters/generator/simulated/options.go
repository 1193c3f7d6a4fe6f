package simulated

import (
	"math/rand/v2"
	"time"

	"github.com/okian/agentmatch/internal/domain/dispatch"
	"github.com/okian/agentmatch/pkg/logger"
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithLatency sets the range the total conversation latency is drawn from.
func WithLatency(lo, hi time.Duration) Option {
	return func(g *Generator) {
		if lo >= 0 {
			g.minLatency = lo
		}
		if hi >= 0 {
			g.maxLatency = hi
		}
	}
}

// WithRounds sets the number of exchange rounds.
func WithRounds(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.rounds = n
		}
	}
}

// WithSeed makes latency draws and failures reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithFailureRate makes a fraction of conversations fail after the last round.
func WithFailureRate(p float64) Option {
	return func(g *Generator) {
		if p >= 0 && p <= 1 {
			g.failRate = p
		}
	}
}

// WithScorer sets the scorer the analysis is derived from.
func WithScorer(s dispatch.Scorer) Option {
	return func(g *Generator) {
		if s != nil {
			g.scorer = s
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}
