// Package arbitrage enumerates closed trading loops in a pricing graph and
// computes their fee-adjusted profitability.
package arbitrage

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlabs/stellarb/internal/domain"
)

// Config holds the tunable parameters of the cycle search.
type Config struct {
	// StartAmount is the notional input used when simulating a loop.
	StartAmount float64
	// UtilizationCeiling is the maximum fraction of an edge's quoted
	// liquidity a hop may consume; a loop whose simulated amount would
	// exceed it at any hop is rejected outright.
	UtilizationCeiling float64
	// NetworkFee is the flat per-hop network fee in starting-asset units.
	NetworkFee float64
	// ExchangeFeeRate is the proportional per-hop exchange fee applied to
	// the maximum executable amount.
	ExchangeFeeRate float64
}

// Engine performs the exhaustive three-hop cycle search.
//
// Enumeration is cubic in the number of graph vertices. That is deliberate:
// the upstream pair catalog keeps the asset universe in the tens, where the
// full Cartesian product is cheaper and simpler than a negative-cycle search.
// Revisit this trade-off before pointing the engine at a larger universe.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates an Engine with the given parameters.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if cfg.StartAmount <= 0 {
		cfg.StartAmount = 100
	}
	if cfg.UtilizationCeiling <= 0 || cfg.UtilizationCeiling > 1 {
		cfg.UtilizationCeiling = 0.10
	}
	return &Engine{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "arb_engine")),
	}
}

// FindLoops enumerates every ordered triple of distinct assets, keeps those
// whose three edges exist and whose cumulative rate product exceeds 1, and
// returns the raw (pre-fee) loops. Rotations of the same cycle discovered
// from different starting vertices are all reported; no deduplication is
// performed. Output order follows the sorted vertex enumeration, so a given
// graph always produces the same result.
func (e *Engine) FindLoops(g *domain.PricingGraph) []domain.ArbitrageLoop {
	assets := g.Assets()
	var loops []domain.ArbitrageLoop

	for _, a := range assets {
		for _, b := range assets {
			if b == a {
				continue
			}
			for _, c := range assets {
				if c == a || c == b {
					continue
				}
				loop, ok := e.simulate(g, []string{a, b, c, a})
				if !ok {
					continue
				}
				loops = append(loops, loop)
			}
		}
	}

	e.logger.Debug("cycle search complete",
		slog.Int("assets", len(assets)),
		slog.Int("loops", len(loops)),
	)
	return loops
}

// Simulate recomputes a loop along the given closed path against the current
// graph. It is used both by the triple enumeration and when re-validating a
// previously detected opportunity against fresh prices.
func (e *Engine) Simulate(g *domain.PricingGraph, path []string) (domain.ArbitrageLoop, bool) {
	if len(path) < 4 || path[0] != path[len(path)-1] {
		return domain.ArbitrageLoop{}, false
	}
	return e.simulate(g, path)
}

// simulate walks the path once with the start notional, enforcing the
// utilization ceiling at every hop, then records the loop's steps at its
// maximum executable amount.
func (e *Engine) simulate(g *domain.PricingGraph, path []string) (domain.ArbitrageLoop, bool) {
	hops := len(path) - 1
	edges := make([]domain.Edge, hops)
	for i := 0; i < hops; i++ {
		edge, ok := g.Edge(path[i], path[i+1])
		if !ok {
			return domain.ArbitrageLoop{}, false
		}
		if edge.Liquidity <= 0 {
			return domain.ArbitrageLoop{}, false
		}
		edges[i] = edge
	}

	// First pass: run the start notional through the loop. maxAmount is the
	// tightest per-hop liquidity cap translated back to starting units.
	amount := e.cfg.StartAmount
	ratio := 1.0
	maxAmount := math.Inf(1)
	for _, edge := range edges {
		hopCap := edge.Liquidity * e.cfg.UtilizationCeiling
		if amount > hopCap {
			return domain.ArbitrageLoop{}, false
		}
		if inputCap := hopCap / ratio; inputCap < maxAmount {
			maxAmount = inputCap
		}
		amount *= edge.Rate
		ratio *= edge.Rate
		if math.IsNaN(amount) || math.IsInf(amount, 0) {
			return domain.ArbitrageLoop{}, false
		}
	}

	if ratio <= 1 {
		return domain.ArbitrageLoop{}, false
	}

	// Second pass: record the steps at the maximum executable amount.
	steps := make([]domain.Step, hops)
	in := maxAmount
	for i, edge := range edges {
		out := in * edge.Rate
		steps[i] = domain.Step{
			From:      path[i],
			To:        path[i+1],
			Pair:      edge.Pair,
			Rate:      edge.Rate,
			AmountIn:  in,
			AmountOut: out,
			Liquidity: edge.Liquidity,
		}
		in = out
	}

	return domain.ArbitrageLoop{
		ID:            uuid.Must(uuid.NewRandom()).String(),
		Path:          append([]string(nil), path...),
		Steps:         steps,
		ProfitRatio:   ratio,
		ProfitPercent: (ratio - 1) * 100,
		MaxAmount:     maxAmount,
		GrossProfit:   maxAmount * (ratio - 1),
		DetectedAt:    time.Now().UTC(),
	}, true
}

// ApplyFees runs the fee-adjustment pass: a flat network fee and a
// proportional exchange fee are charged per hop against the maximum
// executable amount, and only loops whose net profit stays positive survive.
func (e *Engine) ApplyFees(loops []domain.ArbitrageLoop) []domain.ArbitrageLoop {
	var out []domain.ArbitrageLoop
	for _, loop := range loops {
		hops := float64(loop.Hops())
		fees := hops*e.cfg.NetworkFee + hops*e.cfg.ExchangeFeeRate*loop.MaxAmount

		loop.NetProfit = loop.GrossProfit - fees
		if loop.MaxAmount > 0 {
			loop.NetProfitPercent = loop.NetProfit / loop.MaxAmount * 100
		}
		loop.Profitable = loop.NetProfit > 0
		if !loop.Profitable {
			continue
		}
		out = append(out, loop)
	}
	return out
}
