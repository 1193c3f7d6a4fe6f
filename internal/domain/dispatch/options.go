package dispatch

import (
	"time"

	"github.com/okian/agentmatch/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithGeneratorTimeout sets the hard deadline of one generator attempt.
func WithGeneratorTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetries sets how many times a failed generator call is retried.
// Timeouts and malformed output are never retried.
func WithRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithRetryBackoff sets the linear backoff between retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.retryBackoff = d
		}
	}
}

// WithScorer sets the scorer attached to results.
func WithScorer(s Scorer) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.scorer = s
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator sets the id source for jobs and history entries.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}
