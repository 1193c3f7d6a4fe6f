// Package repository provides in-memory stores for profiles, jobs, history,
// settings and cached matches.
package repository

import "time"

// JobOption applies a configuration option to the JobStore.
type JobOption func(*JobStore)

// WithRetention sets how long terminal jobs stay readable. Zero keeps them forever.
func WithRetention(d time.Duration) JobOption {
	return func(s *JobStore) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithSweepInterval sets how often expired jobs are removed.
func WithSweepInterval(interval time.Duration) JobOption {
	return func(s *JobStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithJobClock sets the time source used for expiry.
func WithJobClock(now func() time.Time) JobOption {
	return func(s *JobStore) {
		if now != nil {
			s.now = now
		}
	}
}
