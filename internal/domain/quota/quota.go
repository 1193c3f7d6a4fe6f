// Package quota enforces the per-user daily cap on dispatch attempts.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/agentmatch/internal/domain/model"
)

// DateLayout is the calendar-date key format.
const DateLayout = "2006-01-02"

// Sentinel errors.
var (
	ErrQuotaExhausted = errors.New("daily dispatch quota exhausted")
	ErrInvalidUser    = errors.New("user id is required")
)

// Store persists quota records keyed by (user, date).
type Store interface {
	// Reserve atomically increments the used count for (userID, date) when it is
	// below limit, creating the record on first use. granted is false when the
	// limit was already reached; q then holds the current record.
	Reserve(ctx context.Context, userID, date string, limit int) (q model.Quota, granted bool, err error)

	// Get returns the record for (userID, date). found is false when none exists.
	Get(ctx context.Context, userID, date string) (q model.Quota, found bool, err error)

	// Release decrements the used count for (userID, date), never below zero.
	Release(ctx context.Context, userID, date string) error
}

// LimitProvider returns a user's configured daily limit. Zero means unset.
type LimitProvider interface {
	DailyLimit(ctx context.Context, userID string) (int, error)
}

// LimitFunc adapts a function to LimitProvider.
type LimitFunc func(ctx context.Context, userID string) (int, error)

// DailyLimit implements LimitProvider.
func (f LimitFunc) DailyLimit(ctx context.Context, userID string) (int, error) {
	return f(ctx, userID)
}

// Manager reserves quota against a Store.
type Manager struct {
	store        Store
	limits       LimitProvider
	defaultLimit int
	now          func() time.Time
	loc          *time.Location
	onReserve    func(granted bool)
}

// NewManager creates a Manager with configuration options.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		defaultLimit: model.DefaultDailyLimit,
		now:          time.Now,
		loc:          time.UTC,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Today returns the date key for the current instant.
func (m *Manager) Today() string {
	return m.now().In(m.loc).Format(DateLayout)
}

// Limit returns the effective daily limit for userID.
func (m *Manager) Limit(ctx context.Context, userID string) (int, error) {
	configured := 0
	if m.limits != nil {
		l, err := m.limits.DailyLimit(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("load daily limit: %w", err)
		}
		configured = l
	}
	return model.ClampDailyLimit(configured, m.defaultLimit), nil
}

// TryReserve consumes one attempt for today.
// It returns ErrQuotaExhausted, with the current record, when the cap is reached.
func (m *Manager) TryReserve(ctx context.Context, userID string) (model.Quota, error) {
	if userID == "" {
		return model.Quota{}, ErrInvalidUser
	}
	limit, err := m.Limit(ctx, userID)
	if err != nil {
		return model.Quota{}, err
	}

	q, granted, err := m.store.Reserve(ctx, userID, m.Today(), limit)
	if err != nil {
		return model.Quota{}, fmt.Errorf("reserve quota: %w", err)
	}
	if m.onReserve != nil {
		m.onReserve(granted)
	}
	if !granted {
		return q, ErrQuotaExhausted
	}
	return q, nil
}

// Current returns today's record without mutating it. A user with no record
// yet reports zero used against the effective limit. When the limit was
// lowered below what is already spent today, the reported limit is held at
// the used count so used never exceeds limit.
func (m *Manager) Current(ctx context.Context, userID string) (model.Quota, error) {
	if userID == "" {
		return model.Quota{}, ErrInvalidUser
	}
	limit, err := m.Limit(ctx, userID)
	if err != nil {
		return model.Quota{}, err
	}

	date := m.Today()
	q, found, err := m.store.Get(ctx, userID, date)
	if err != nil {
		return model.Quota{}, fmt.Errorf("get quota: %w", err)
	}
	if !found {
		return model.Quota{UserID: userID, Date: date, Limit: limit}, nil
	}
	q.Limit = max(limit, q.Used)
	return q, nil
}

// Release gives back a reservation that never turned into a job.
// It must not be used for jobs that ran and failed.
func (m *Manager) Release(ctx context.Context, q model.Quota) error {
	if err := m.store.Release(ctx, q.UserID, q.Date); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}
