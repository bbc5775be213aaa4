package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenlabs/stellarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// Path and steps are stored as JSONB; the rest of the loop is flattened into
// queryable columns.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, path, steps, profit_ratio, profit_percent,
	max_amount, gross_profit, net_profit, net_profit_percent, profitable,
	detected_at`

// Insert stores a detected arbitrage loop.
func (s *OpportunityStore) Insert(ctx context.Context, loop domain.ArbitrageLoop) error {
	const query = `
		INSERT INTO opportunity_history (
			id, path, steps, profit_ratio, profit_percent,
			max_amount, gross_profit, net_profit, net_profit_percent,
			profitable, detected_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11
		)
		ON CONFLICT (id) DO NOTHING`

	path, err := json.Marshal(loop.Path)
	if err != nil {
		return fmt.Errorf("postgres: marshal path %s: %w", loop.ID, err)
	}
	steps, err := json.Marshal(loop.Steps)
	if err != nil {
		return fmt.Errorf("postgres: marshal steps %s: %w", loop.ID, err)
	}

	_, err = s.pool.Exec(ctx, query,
		loop.ID, path, steps, loop.ProfitRatio, loop.ProfitPercent,
		loop.MaxAmount, loop.GrossProfit, loop.NetProfit, loop.NetProfitPercent,
		loop.Profitable, loop.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", loop.ID, err)
	}
	return nil
}

// ListRecent returns the most recent loops ordered by detection time.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageLoop, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunity_history ORDER BY detected_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()
	return scanLoops(rows)
}

// ListBefore returns all loops detected strictly before the cutoff, oldest
// first, for archival.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageLoop, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunity_history
		WHERE detected_at < $1 ORDER BY detected_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanLoops(rows)
}

// DeleteBefore removes loops detected strictly before the cutoff. Called
// after an archive upload has been verified.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM opportunity_history WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanLoops(rows pgx.Rows) ([]domain.ArbitrageLoop, error) {
	var loops []domain.ArbitrageLoop
	for rows.Next() {
		var loop domain.ArbitrageLoop
		var path, steps []byte

		if err := rows.Scan(
			&loop.ID, &path, &steps, &loop.ProfitRatio, &loop.ProfitPercent,
			&loop.MaxAmount, &loop.GrossProfit, &loop.NetProfit, &loop.NetProfitPercent,
			&loop.Profitable, &loop.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		if err := json.Unmarshal(path, &loop.Path); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal path %s: %w", loop.ID, err)
		}
		if err := json.Unmarshal(steps, &loop.Steps); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal steps %s: %w", loop.ID, err)
		}
		loops = append(loops, loop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: opportunity rows: %w", err)
	}
	return loops, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
