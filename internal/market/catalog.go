// Package market acquires order-book snapshots for the trading-pair catalog
// in rate-controlled batches.
package market

import (
	"github.com/lumenlabs/stellarb/internal/config"
	"github.com/lumenlabs/stellarb/internal/domain"
)

// Catalog supplies the ordered list of trading pairs to probe. The core
// treats it as read-only input per analysis run.
type Catalog interface {
	Pairs() []domain.TradingPair
}

// StaticCatalog is a Catalog backed by a fixed pair list, typically built
// from configuration at startup.
type StaticCatalog struct {
	pairs []domain.TradingPair
}

// NewStaticCatalog creates a catalog from the given pairs.
func NewStaticCatalog(pairs []domain.TradingPair) *StaticCatalog {
	return &StaticCatalog{pairs: pairs}
}

// Pairs returns the catalog's pair list. Callers must not mutate it.
func (c *StaticCatalog) Pairs() []domain.TradingPair {
	return c.pairs
}

// CatalogFromConfig builds a StaticCatalog from TOML pair entries. An empty
// issuer denotes the native asset.
func CatalogFromConfig(entries []config.PairConfig) *StaticCatalog {
	pairs := make([]domain.TradingPair, 0, len(entries))
	for _, e := range entries {
		pairs = append(pairs, domain.TradingPair{
			Base:    domain.Asset{Code: e.BaseCode, Issuer: e.BaseIssuer},
			Counter: domain.Asset{Code: e.CounterCode, Issuer: e.CounterIssuer},
		})
	}
	return NewStaticCatalog(pairs)
}

// Compile-time interface check.
var _ Catalog = (*StaticCatalog)(nil)
