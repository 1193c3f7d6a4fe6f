package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/okian/agentmatch/internal/domain/model"
)

// HistoryStore keeps dispatch attempts in the dispatch_history table.
type HistoryStore struct {
	db *DB
}

// NewHistoryStore returns a HistoryStore backed by db.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Append inserts an entry. Re-appending the same id is a no-op.
func (s *HistoryStore) Append(ctx context.Context, e model.HistoryEntry) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO dispatch_history
		   (id, user_id, target_id, job_id, dispatch_date, success, reason, match_score, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.UserID, e.TargetID, e.JobID, e.Date, e.Success, e.Reason, e.MatchScore, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// List returns up to limit entries for userID, newest first. limit <= 0 means all.
func (s *HistoryStore) List(ctx context.Context, userID string, limit int) ([]model.HistoryEntry, error) {
	query := `SELECT id, user_id, target_id, job_id, dispatch_date, success, reason, match_score, created_at
		 FROM dispatch_history
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.HistoryEntry, error) {
		var e model.HistoryEntry
		err := row.Scan(&e.ID, &e.UserID, &e.TargetID, &e.JobID, &e.Date, &e.Success, &e.Reason, &e.MatchScore, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	return entries, nil
}

// Summary returns the total and successful attempt counts for userID.
func (s *HistoryStore) Summary(ctx context.Context, userID string) (total, successes int, err error) {
	err = s.db.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE success)
		 FROM dispatch_history WHERE user_id = $1`,
		userID,
	).Scan(&total, &successes)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to summarize history: %w", err)
	}
	return total, successes, nil
}

// SuccessfulTargets returns the ids userID has successfully reached.
func (s *HistoryStore) SuccessfulTargets(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT DISTINCT target_id FROM dispatch_history WHERE user_id = $1 AND success`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan targets: %w", err)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
