package domain

import "sort"

// EdgeDirection tags whether an edge follows the quoted pair (base→counter)
// or its reverse.
type EdgeDirection string

const (
	EdgeForward EdgeDirection = "forward"
	EdgeReverse EdgeDirection = "reverse"
)

// Edge is one directed conversion in the pricing graph. Rate is the effective
// exchange rate from the edge's source asset to its destination (mid-price
// for forward edges, its reciprocal for reverse edges). Liquidity is the
// originating snapshot's minimum-side liquidity; both directions of a pair
// carry the same value.
type Edge struct {
	Pair      TradingPair   `json:"pair"`
	Rate      float64       `json:"rate"`
	Liquidity float64       `json:"liquidity"`
	Direction EdgeDirection `json:"direction"`
}

// PricingGraph is a directed graph of asset-to-asset conversions. It is
// rebuilt from scratch on every analysis cycle, never patched incrementally,
// so a pair dropping out of the catalog can never leave a stale edge behind.
type PricingGraph struct {
	edges map[string]map[string]Edge
}

// NewPricingGraph returns an empty graph.
func NewPricingGraph() *PricingGraph {
	return &PricingGraph{edges: make(map[string]map[string]Edge)}
}

// AddEdge inserts or replaces the directed edge from one asset code to
// another.
func (g *PricingGraph) AddEdge(from, to string, e Edge) {
	m, ok := g.edges[from]
	if !ok {
		m = make(map[string]Edge)
		g.edges[from] = m
	}
	m[to] = e
}

// Edge returns the directed edge between two asset codes, if present.
func (g *PricingGraph) Edge(from, to string) (Edge, bool) {
	e, ok := g.edges[from][to]
	return e, ok
}

// Assets returns every asset code that appears as an edge source, sorted.
// Sorting fixes the vertex iteration order so cycle enumeration is
// reproducible across runs of the same graph.
func (g *PricingGraph) Assets() []string {
	assets := make([]string, 0, len(g.edges))
	for code := range g.edges {
		assets = append(assets, code)
	}
	sort.Strings(assets)
	return assets
}

// EdgeCount returns the total number of directed edges.
func (g *PricingGraph) EdgeCount() int {
	n := 0
	for _, m := range g.edges {
		n += len(m)
	}
	return n
}
