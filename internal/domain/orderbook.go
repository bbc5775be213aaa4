package domain

import "time"

// PriceLevel is a single price+amount entry in an order book.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// OrderBookSnapshot is a point-in-time view of one trading pair's order book.
// Bids are ordered by descending price, asks by ascending price. Snapshots are
// immutable after creation; a new poll supersedes, never mutates.
type OrderBookSnapshot struct {
	Pair         TradingPair  `json:"pair"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	MidPrice     float64      `json:"mid_price"`
	BidLiquidity float64      `json:"bid_liquidity"`
	AskLiquidity float64      `json:"ask_liquidity"`
	MinLiquidity float64      `json:"min_liquidity"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NewOrderBookSnapshot builds a snapshot and computes the derived mid-price
// and liquidity metrics. When either side is empty the mid-price is left at
// zero; HasMid distinguishes that case from a genuine zero.
func NewOrderBookSnapshot(pair TradingPair, bids, asks []PriceLevel, ts time.Time) OrderBookSnapshot {
	snap := OrderBookSnapshot{
		Pair:      pair,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
	}
	for _, lvl := range bids {
		snap.BidLiquidity += lvl.Amount
	}
	for _, lvl := range asks {
		snap.AskLiquidity += lvl.Amount
	}
	snap.MinLiquidity = snap.BidLiquidity
	if snap.AskLiquidity < snap.MinLiquidity {
		snap.MinLiquidity = snap.AskLiquidity
	}
	if len(bids) > 0 && len(asks) > 0 {
		snap.MidPrice = (bids[0].Price + asks[0].Price) / 2
	}
	return snap
}

// HasMid reports whether the snapshot has a defined mid-price, i.e. both
// sides of the book are non-empty.
func (s OrderBookSnapshot) HasMid() bool {
	return len(s.Bids) > 0 && len(s.Asks) > 0
}
