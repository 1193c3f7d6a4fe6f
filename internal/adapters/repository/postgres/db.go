// Package postgres stores daily quota counters and dispatch history in
// PostgreSQL so they survive restarts and can be shared by several instances.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/agentmatch/internal/domain/model"
	"github.com/okian/agentmatch/internal/domain/quota"
)

//go:embed schema.sql
var schema string

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// QuotaStore implements quota.Store on the dispatch_quota table.
type QuotaStore struct {
	db *DB
}

var _ quota.Store = (*QuotaStore)(nil)

// NewQuotaStore returns a QuotaStore backed by db.
func NewQuotaStore(db *DB) *QuotaStore {
	return &QuotaStore{db: db}
}

// Reserve increments the counter in a single statement. The conditional
// upsert only touches the row while used_count is below the limit, so
// concurrent callers cannot overshoot it.
func (s *QuotaStore) Reserve(ctx context.Context, userID, date string, limit int) (model.Quota, bool, error) {
	q := model.Quota{UserID: userID, Date: date}
	err := s.db.pool.QueryRow(ctx,
		`INSERT INTO dispatch_quota (user_id, quota_date, used_count, daily_limit)
		 VALUES ($1, $2, 1, $3)
		 ON CONFLICT (user_id, quota_date) DO UPDATE
		 SET used_count = dispatch_quota.used_count + 1,
		     daily_limit = EXCLUDED.daily_limit,
		     updated_at = NOW()
		 WHERE dispatch_quota.used_count < EXCLUDED.daily_limit
		 RETURNING used_count, daily_limit`,
		userID, date, limit,
	).Scan(&q.Used, &q.Limit)
	if err == nil {
		return q, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Quota{}, false, fmt.Errorf("failed to reserve quota: %w", err)
	}

	current, _, err := s.Get(ctx, userID, date)
	if err != nil {
		return model.Quota{}, false, err
	}
	current.Limit = limit
	return current, false, nil
}

// Get returns the record for (userID, date).
func (s *QuotaStore) Get(ctx context.Context, userID, date string) (model.Quota, bool, error) {
	q := model.Quota{UserID: userID, Date: date}
	err := s.db.pool.QueryRow(ctx,
		`SELECT used_count, daily_limit FROM dispatch_quota
		 WHERE user_id = $1 AND quota_date = $2`,
		userID, date,
	).Scan(&q.Used, &q.Limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return q, false, nil
		}
		return model.Quota{}, false, fmt.Errorf("failed to get quota: %w", err)
	}
	return q, true, nil
}

// Release gives one attempt back, never going below zero.
func (s *QuotaStore) Release(ctx context.Context, userID, date string) error {
	_, err := s.db.pool.Exec(ctx,
		`UPDATE dispatch_quota
		 SET used_count = used_count - 1, updated_at = NOW()
		 WHERE user_id = $1 AND quota_date = $2 AND used_count > 0`,
		userID, date,
	)
	if err != nil {
		return fmt.Errorf("failed to release quota: %w", err)
	}
	return nil
}
