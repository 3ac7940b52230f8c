package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// FollowerStore implements domain.FollowerStore using PostgreSQL, the
// system-of-record for copy-trading relationships a FollowerCache miss
// reads through to.
type FollowerStore struct {
	pool *pgxpool.Pool
}

// NewFollowerStore creates a new FollowerStore backed by the given connection pool.
func NewFollowerStore(pool *pgxpool.Pool) *FollowerStore {
	return &FollowerStore{pool: pool}
}

// ListActiveFollowers returns the follower user ids currently following
// leaderUserID.
func (s *FollowerStore) ListActiveFollowers(ctx context.Context, leaderUserID int64) ([]int64, error) {
	const query = `
		SELECT follower_user_id FROM copy_relations
		WHERE leader_user_id = $1 AND status = $2
		ORDER BY follower_user_id`

	rows, err := s.pool.Query(ctx, query, leaderUserID, domain.FollowerStatusActive)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active followers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan follower id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active followers rows: %w", err)
	}
	return ids, nil
}

// Follow inserts or reactivates a copy-trading relationship.
func (s *FollowerStore) Follow(ctx context.Context, leaderUserID, followerUserID int64) error {
	const query = `
		INSERT INTO copy_relations (leader_user_id, follower_user_id, status, since)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (leader_user_id, follower_user_id) DO UPDATE SET
			status = EXCLUDED.status,
			since  = NOW()`

	_, err := s.pool.Exec(ctx, query, leaderUserID, followerUserID, domain.FollowerStatusActive)
	if err != nil {
		return fmt.Errorf("postgres: follow: %w", err)
	}
	return nil
}

// Unfollow marks a copy-trading relationship ended.
func (s *FollowerStore) Unfollow(ctx context.Context, leaderUserID, followerUserID int64) error {
	const query = `
		UPDATE copy_relations SET status = $3
		WHERE leader_user_id = $1 AND follower_user_id = $2`

	_, err := s.pool.Exec(ctx, query, leaderUserID, followerUserID, domain.FollowerStatusEnded)
	if err != nil {
		return fmt.Errorf("postgres: unfollow: %w", err)
	}
	return nil
}

var _ domain.FollowerStore = (*FollowerStore)(nil)
