package quota

import "time"

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithLimitProvider sets the source of per-user daily limits.
func WithLimitProvider(p LimitProvider) Option {
	return func(m *Manager) {
		m.limits = p
	}
}

// WithDefaultLimit sets the limit used when a user has none configured.
func WithDefaultLimit(limit int) Option {
	return func(m *Manager) {
		if limit > 0 {
			m.defaultLimit = limit
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLocation sets the time zone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithReserveObserver registers a callback invoked after every reservation attempt.
func WithReserveObserver(fn func(granted bool)) Option {
	return func(m *Manager) {
		m.onReserve = fn
	}
}
