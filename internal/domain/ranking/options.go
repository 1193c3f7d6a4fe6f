package ranking

import "time"

// Option applies a configuration option to the Selector.
type Option func(*Selector)

// WithScorer sets the scorer used for every candidate.
func WithScorer(scorer Scorer) Option {
	return func(s *Selector) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

// WithParallelThreshold sets the pool size from which scoring fans out.
func WithParallelThreshold(n int) Option {
	return func(s *Selector) {
		s.parallelThreshold = n
	}
}

// WithConcurrency sets the number of scoring goroutines for large pools.
func WithConcurrency(n int) Option {
	return func(s *Selector) {
		s.concurrency = n
	}
}

// WithObserver registers a callback receiving the pool size and ranking duration.
func WithObserver(fn func(candidates int, d time.Duration)) Option {
	return func(s *Selector) {
		s.observe = fn
	}
}
