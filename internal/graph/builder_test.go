package graph

import (
	"math"
	"testing"
	"time"

	"github.com/lumenlabs/stellarb/internal/domain"
)

func pair(base, counter string) domain.TradingPair {
	return domain.TradingPair{
		Base:    domain.Asset{Code: base},
		Counter: domain.Asset{Code: counter},
	}
}

func snapshot(base, counter string, bid, ask, amount float64) domain.OrderBookSnapshot {
	return domain.NewOrderBookSnapshot(
		pair(base, counter),
		[]domain.PriceLevel{{Price: bid, Amount: amount}},
		[]domain.PriceLevel{{Price: ask, Amount: amount}},
		time.Now(),
	)
}

func TestBuildAddsForwardAndReverseEdges(t *testing.T) {
	snaps := []domain.OrderBookSnapshot{
		snapshot("XLM", "USDC", 1.9, 2.1, 500),
	}

	g := Build(snaps)

	if got := g.EdgeCount(); got != 2 {
		t.Fatalf("EdgeCount() = %d, want 2", got)
	}

	fwd, ok := g.Edge("XLM", "USDC")
	if !ok {
		t.Fatal("missing forward edge XLM->USDC")
	}
	if fwd.Rate != 2.0 {
		t.Errorf("forward rate = %v, want 2.0", fwd.Rate)
	}
	if fwd.Direction != domain.EdgeForward {
		t.Errorf("forward direction = %q", fwd.Direction)
	}
	if fwd.Liquidity != 500 {
		t.Errorf("forward liquidity = %v, want 500", fwd.Liquidity)
	}

	rev, ok := g.Edge("USDC", "XLM")
	if !ok {
		t.Fatal("missing reverse edge USDC->XLM")
	}
	if math.Abs(rev.Rate-0.5) > 1e-12 {
		t.Errorf("reverse rate = %v, want 0.5", rev.Rate)
	}
	if rev.Direction != domain.EdgeReverse {
		t.Errorf("reverse direction = %q", rev.Direction)
	}
	if rev.Liquidity != 500 {
		t.Errorf("reverse liquidity = %v, want 500", rev.Liquidity)
	}
}

func TestBuildSkipsOneSidedBooks(t *testing.T) {
	oneSided := domain.NewOrderBookSnapshot(
		pair("XLM", "EUR"),
		[]domain.PriceLevel{{Price: 1.0, Amount: 100}},
		nil,
		time.Now(),
	)

	g := Build([]domain.OrderBookSnapshot{
		oneSided,
		snapshot("XLM", "USDC", 1.9, 2.1, 500),
	})

	if got := g.EdgeCount(); got != 2 {
		t.Fatalf("EdgeCount() = %d, want 2 (one-sided book must be skipped)", got)
	}
	if _, ok := g.Edge("XLM", "EUR"); ok {
		t.Error("one-sided book contributed an edge")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	snaps := []domain.OrderBookSnapshot{
		snapshot("XLM", "USDC", 1.9, 2.1, 500),
		snapshot("USDC", "EUR", 0.8, 1.0, 300),
		snapshot("EUR", "XLM", 0.3, 0.5, 700),
	}

	a := Build(snaps)
	b := Build(snaps)

	if a.EdgeCount() != b.EdgeCount() {
		t.Fatalf("edge counts differ: %d vs %d", a.EdgeCount(), b.EdgeCount())
	}
	for _, from := range a.Assets() {
		for _, to := range a.Assets() {
			ea, oka := a.Edge(from, to)
			eb, okb := b.Edge(from, to)
			if oka != okb || ea != eb {
				t.Errorf("edge %s->%s differs between builds", from, to)
			}
		}
	}
}
