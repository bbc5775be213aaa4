package market

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumenlabs/stellarb/internal/domain"
)

// OrderBookSource retrieves a single pair's order book from the exchange.
type OrderBookSource interface {
	GetOrderBook(ctx context.Context, pair domain.TradingPair) (domain.OrderBookSnapshot, error)
}

// FetcherConfig configures the snapshot fetcher.
type FetcherConfig struct {
	// BatchSize is the number of pairs requested concurrently per batch.
	BatchSize int
	// BatchDelay is the pacing delay between batches, respecting the
	// upstream rate ceiling.
	BatchDelay time.Duration
	// RequestTimeout bounds each individual order-book request.
	RequestTimeout time.Duration
	// LiquidityFloor excludes snapshots whose minimum-side liquidity falls
	// below it. Exclusion is silent; thin books are not errors.
	LiquidityFloor float64
}

// Fetcher acquires order-book snapshots for a list of trading pairs in
// fixed-size concurrent batches. A failed or timed-out request drops only
// that pair from the result set; it never aborts the batch or the run.
type Fetcher struct {
	source OrderBookSource
	cfg    FetcherConfig
	logger *slog.Logger
}

// NewFetcher creates a Fetcher over the given order-book source.
func NewFetcher(source OrderBookSource, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 3
	}
	return &Fetcher{
		source: source,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "fetcher")),
	}
}

// FetchOrderBooks fetches snapshots for every pair and returns those that
// meet the liquidity floor, in catalog order. It returns an error only when
// the context is cancelled; per-pair failures are logged and skipped.
func (f *Fetcher) FetchOrderBooks(ctx context.Context, pairs []domain.TradingPair) ([]domain.OrderBookSnapshot, error) {
	results := make([]*domain.OrderBookSnapshot, len(pairs))

	for start := 0; start < len(pairs); start += f.cfg.BatchSize {
		end := start + f.cfg.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}

		if err := f.fetchBatch(ctx, pairs[start:end], results[start:end]); err != nil {
			return nil, err
		}

		// Pace between batches, but never after the last one.
		if end < len(pairs) && f.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.cfg.BatchDelay):
			}
		}
	}

	snapshots := make([]domain.OrderBookSnapshot, 0, len(pairs))
	for _, snap := range results {
		if snap != nil {
			snapshots = append(snapshots, *snap)
		}
	}

	f.logger.Info("order book fetch complete",
		slog.Int("requested", len(pairs)),
		slog.Int("valid", len(snapshots)),
	)
	return snapshots, nil
}

// fetchBatch issues one batch of concurrent requests, each bounded by its own
// timeout so a stalled pair cannot block its siblings.
func (f *Fetcher) fetchBatch(ctx context.Context, pairs []domain.TradingPair, out []*domain.OrderBookSnapshot) error {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			reqCtx := gctx
			if f.cfg.RequestTimeout > 0 {
				var cancel context.CancelFunc
				reqCtx, cancel = context.WithTimeout(gctx, f.cfg.RequestTimeout)
				defer cancel()
			}

			snap, err := f.source.GetOrderBook(reqCtx, pair)
			if err != nil {
				// Transient acquisition failure: drop the pair, keep the run.
				f.logger.Warn("order book fetch failed",
					slog.String("pair", pair.Key()),
					slog.String("error", err.Error()),
				)
				return nil
			}

			if snap.MinLiquidity < f.cfg.LiquidityFloor {
				f.logger.Debug("order book below liquidity floor",
					slog.String("pair", pair.Key()),
					slog.Float64("min_liquidity", snap.MinLiquidity),
					slog.Float64("floor", f.cfg.LiquidityFloor),
				)
				return nil
			}

			mu.Lock()
			out[i] = &snap
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
