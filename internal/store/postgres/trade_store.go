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

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeCols = `id, loop_id, path, input_amount, output_amount, profit,
	status, failure_cause, executed_at`

// Insert stores a trade record.
func (s *TradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trade_history (
			id, loop_id, path, input_amount, output_amount, profit,
			status, failure_cause, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9
		)
		ON CONFLICT (id) DO NOTHING`

	path, err := json.Marshal(rec.Path)
	if err != nil {
		return fmt.Errorf("postgres: marshal trade path %s: %w", rec.ID, err)
	}

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.LoopID, path, rec.InputAmount, rec.OutputAmount, rec.Profit,
		string(rec.Status), rec.FailureCause, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns the most recent trades ordered by execution time.
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeCols + ` FROM trade_history ORDER BY executed_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ListBefore returns all trades executed strictly before the cutoff, oldest
// first, for archival.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeCols + ` FROM trade_history
		WHERE executed_at < $1 ORDER BY executed_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// DeleteBefore removes trades executed strictly before the cutoff.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trade_history WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanTrades(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var recs []domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		var path []byte
		var status string

		if err := rows.Scan(
			&rec.ID, &rec.LoopID, &path, &rec.InputAmount, &rec.OutputAmount,
			&rec.Profit, &status, &rec.FailureCause, &rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		rec.Status = domain.TradeStatus(status)
		if err := json.Unmarshal(path, &rec.Path); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal trade path %s: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: trade rows: %w", err)
	}
	return recs, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
