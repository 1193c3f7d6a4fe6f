package service

import (
	"time"

	"github.com/okian/agentmatch/internal/adapters/repository"
	"github.com/okian/agentmatch/internal/domain/dispatch"
	"github.com/okian/agentmatch/internal/domain/quota"
	"github.com/okian/agentmatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of dispatch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the dispatch queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDefaultDailyLimit sets the limit for users without their own setting.
func WithDefaultDailyLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.defaultLimit = limit
		}
	}
}

// WithMaxMatchLimit caps how many matches one request may return.
func WithMaxMatchLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxMatchLimit = limit
		}
	}
}

// WithFixture seeds profiles and settings.
func WithFixture(f repository.Fixture) Option {
	return func(s *Service) {
		s.fixture = f
	}
}

// WithGenerator sets the conversation generator.
func WithGenerator(g dispatch.Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.generator = g
		}
	}
}

// WithGeneratorTimeout bounds a single generator attempt.
func WithGeneratorTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.generatorTimeout = d
		}
	}
}

// WithGeneratorRetries sets how often transient generator failures are retried.
func WithGeneratorRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.generatorRetries = n
		}
	}
}

// WithQuotaStore replaces the in-memory quota store, e.g. with PostgreSQL.
func WithQuotaStore(store quota.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.quotaStore = store
		}
	}
}

// WithHistoryStore replaces the in-memory history store.
func WithHistoryStore(h History) Option {
	return func(s *Service) {
		if h != nil {
			s.history = h
		}
	}
}

// WithLocation sets the time zone that decides where a quota day starts.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock sets the time source for quota days and job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAutoDispatchInterval enables the periodic auto-dispatch run.
func WithAutoDispatchInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.autoInterval = d
		}
	}
}

// WithJobRetention drops terminal jobs older than d.
func WithJobRetention(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.jobRetention = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
