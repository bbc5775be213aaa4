package domain

import (
	"context"
	"time"
)

// OpportunityStore persists detected arbitrage loops for later inspection.
type OpportunityStore interface {
	Insert(ctx context.Context, loop ArbitrageLoop) error
	ListRecent(ctx context.Context, limit int) ([]ArbitrageLoop, error)
	ListBefore(ctx context.Context, before time.Time) ([]ArbitrageLoop, error)
}

// TradeStore persists trade execution records.
type TradeStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListRecent(ctx context.Context, limit int) ([]TradeRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]TradeRecord, error)
}
