package market

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lumenlabs/stellarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves canned snapshots keyed by pair, with optional per-pair
// failures. It counts calls so tests can assert fetch behavior.
type fakeSource struct {
	mu    sync.Mutex
	books map[string]domain.OrderBookSnapshot
	fail  map[string]error
	calls int
}

func (f *fakeSource) GetOrderBook(ctx context.Context, pair domain.TradingPair) (domain.OrderBookSnapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	if err, ok := f.fail[pair.Key()]; ok {
		return domain.OrderBookSnapshot{}, err
	}
	snap, ok := f.books[pair.Key()]
	if !ok {
		return domain.OrderBookSnapshot{}, errors.New("fake: no book")
	}
	return snap, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func makePair(base, counter string) domain.TradingPair {
	return domain.TradingPair{
		Base:    domain.Asset{Code: base},
		Counter: domain.Asset{Code: counter},
	}
}

func makeBook(p domain.TradingPair, amount float64) domain.OrderBookSnapshot {
	return domain.NewOrderBookSnapshot(p,
		[]domain.PriceLevel{{Price: 0.9, Amount: amount}},
		[]domain.PriceLevel{{Price: 1.1, Amount: amount}},
		time.Now(),
	)
}

func TestFetchOrderBooksKeepsCatalogOrder(t *testing.T) {
	pairs := []domain.TradingPair{
		makePair("XLM", "USDC"),
		makePair("USDC", "EUR"),
		makePair("EUR", "XLM"),
		makePair("XLM", "BTC"),
	}
	source := &fakeSource{books: map[string]domain.OrderBookSnapshot{}}
	for _, p := range pairs {
		source.books[p.Key()] = makeBook(p, 500)
	}

	f := NewFetcher(source, FetcherConfig{BatchSize: 3}, testLogger())
	snaps, err := f.FetchOrderBooks(context.Background(), pairs)
	if err != nil {
		t.Fatalf("FetchOrderBooks: %v", err)
	}
	if len(snaps) != len(pairs) {
		t.Fatalf("got %d snapshots, want %d", len(snaps), len(pairs))
	}
	for i, snap := range snaps {
		if snap.Pair.Key() != pairs[i].Key() {
			t.Errorf("snapshot %d is %s, want %s", i, snap.Pair.Key(), pairs[i].Key())
		}
	}
	if source.callCount() != len(pairs) {
		t.Errorf("source called %d times, want %d", source.callCount(), len(pairs))
	}
}

func TestFetchOrderBooksDropsFailedPairs(t *testing.T) {
	pairs := []domain.TradingPair{
		makePair("XLM", "USDC"),
		makePair("USDC", "EUR"),
		makePair("EUR", "XLM"),
	}
	source := &fakeSource{
		books: map[string]domain.OrderBookSnapshot{
			pairs[0].Key(): makeBook(pairs[0], 500),
			pairs[2].Key(): makeBook(pairs[2], 500),
		},
		fail: map[string]error{
			pairs[1].Key(): errors.New("fake: 503"),
		},
	}

	f := NewFetcher(source, FetcherConfig{BatchSize: 3}, testLogger())
	snaps, err := f.FetchOrderBooks(context.Background(), pairs)
	if err != nil {
		t.Fatalf("FetchOrderBooks: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2 (failed pair dropped)", len(snaps))
	}
	for _, snap := range snaps {
		if snap.Pair.Key() == pairs[1].Key() {
			t.Error("failed pair present in results")
		}
	}
}

func TestFetchOrderBooksAppliesLiquidityFloor(t *testing.T) {
	pairs := []domain.TradingPair{
		makePair("XLM", "USDC"),
		makePair("USDC", "EUR"),
	}
	source := &fakeSource{
		books: map[string]domain.OrderBookSnapshot{
			pairs[0].Key(): makeBook(pairs[0], 500),
			pairs[1].Key(): makeBook(pairs[1], 10), // below floor
		},
	}

	f := NewFetcher(source, FetcherConfig{BatchSize: 3, LiquidityFloor: 100}, testLogger())
	snaps, err := f.FetchOrderBooks(context.Background(), pairs)
	if err != nil {
		t.Fatalf("FetchOrderBooks: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1 (thin book excluded)", len(snaps))
	}
	if snaps[0].Pair.Key() != pairs[0].Key() {
		t.Errorf("surviving snapshot is %s, want %s", snaps[0].Pair.Key(), pairs[0].Key())
	}
}

func TestFetchOrderBooksPacesBetweenBatches(t *testing.T) {
	pairs := []domain.TradingPair{
		makePair("XLM", "USDC"),
		makePair("USDC", "EUR"),
		makePair("EUR", "XLM"),
		makePair("XLM", "BTC"),
	}
	source := &fakeSource{books: map[string]domain.OrderBookSnapshot{}}
	for _, p := range pairs {
		source.books[p.Key()] = makeBook(p, 500)
	}

	delay := 40 * time.Millisecond
	f := NewFetcher(source, FetcherConfig{BatchSize: 3, BatchDelay: delay}, testLogger())

	start := time.Now()
	if _, err := f.FetchOrderBooks(context.Background(), pairs); err != nil {
		t.Fatalf("FetchOrderBooks: %v", err)
	}
	// Two batches (3+1) means exactly one pacing delay.
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("elapsed %v, want at least %v between batches", elapsed, delay)
	}
}

func TestFetchOrderBooksHonorsCancellation(t *testing.T) {
	pairs := []domain.TradingPair{
		makePair("XLM", "USDC"),
		makePair("USDC", "EUR"),
		makePair("EUR", "XLM"),
		makePair("XLM", "BTC"),
	}
	source := &fakeSource{books: map[string]domain.OrderBookSnapshot{}}
	for _, p := range pairs {
		source.books[p.Key()] = makeBook(p, 500)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(source, FetcherConfig{BatchSize: 3, BatchDelay: time.Second}, testLogger())
	if _, err := f.FetchOrderBooks(ctx, pairs); !errors.Is(err, context.Canceled) {
		t.Fatalf("FetchOrderBooks error = %v, want context.Canceled", err)
	}
}
