// Package graph converts order-book snapshots into the directed pricing
// graph searched by the arbitrage engine.
package graph

import "github.com/lumenlabs/stellarb/internal/domain"

// Build constructs a pricing graph from the given snapshots. Every snapshot
// with a defined mid-price contributes exactly two edges: base→counter at the
// mid-price and counter→base at its reciprocal, both carrying the snapshot's
// minimum-side liquidity. No normalization or currency conversion is applied;
// all rates are pairwise and relative.
//
// Build is deterministic and keeps no hidden state: the same input always
// yields an identical graph.
func Build(snapshots []domain.OrderBookSnapshot) *domain.PricingGraph {
	g := domain.NewPricingGraph()

	for _, snap := range snapshots {
		if !snap.HasMid() || snap.MidPrice <= 0 {
			continue
		}

		base := snap.Pair.Base.Code
		counter := snap.Pair.Counter.Code

		g.AddEdge(base, counter, domain.Edge{
			Pair:      snap.Pair,
			Rate:      snap.MidPrice,
			Liquidity: snap.MinLiquidity,
			Direction: domain.EdgeForward,
		})
		g.AddEdge(counter, base, domain.Edge{
			Pair:      snap.Pair,
			Rate:      1 / snap.MidPrice,
			Liquidity: snap.MinLiquidity,
			Direction: domain.EdgeReverse,
		})
	}

	return g
}
