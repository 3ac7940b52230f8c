package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkwiatkowski/tradebot/internal/domain"
)

// StrategyStore implements domain.StrategyStore using PostgreSQL.
type StrategyStore struct {
	pool *pgxpool.Pool
}

// NewStrategyStore creates a new StrategyStore backed by the given connection pool.
func NewStrategyStore(pool *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// ListEnabled returns every user_strategies row whose status is 'enabled',
// the Scheduler's desired-set predicate per spec.md §6.
func (s *StrategyStore) ListEnabled(ctx context.Context) ([]domain.StrategyRow, error) {
	const query = `
		SELECT id, user_id, exchange, symbol, kind, params, status
		FROM user_strategies
		WHERE status = $1
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query, domain.StrategyStatusEnabled)
	if err != nil {
		return nil, fmt.Errorf("postgres: list enabled strategies: %w", err)
	}
	defer rows.Close()

	var out []domain.StrategyRow
	for rows.Next() {
		var row domain.StrategyRow
		if err := rows.Scan(&row.ID, &row.UserID, &row.Exchange, &row.Symbol, &row.Kind, &row.Params, &row.Status); err != nil {
			return nil, fmt.Errorf("postgres: scan strategy row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list enabled strategies rows: %w", err)
	}
	return out, nil
}

var _ domain.StrategyStore = (*StrategyStore)(nil)
