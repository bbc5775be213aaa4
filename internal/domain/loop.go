package domain

import "time"

// Step is one hop of an arbitrage loop: a conversion of AmountIn units of
// From into AmountOut units of To at the quoted Rate. Liquidity is the
// quoted liquidity of the edge used for the hop.
type Step struct {
	From      string      `json:"from"`
	To        string      `json:"to"`
	Pair      TradingPair `json:"pair"`
	Rate      float64     `json:"rate"`
	AmountIn  float64     `json:"amount_in"`
	AmountOut float64     `json:"amount_out"`
	Liquidity float64     `json:"liquidity"`
}

// ArbitrageLoop is a closed sequence of trades returning to its starting
// asset. Path has one more element than Steps, with the first and last
// entries equal. Loops are immutable once built; a new analysis run
// supersedes them.
type ArbitrageLoop struct {
	ID    string   `json:"id"`
	Path  []string `json:"path"`
	Steps []Step   `json:"steps"`

	// ProfitRatio is the cumulative rate product around the loop; the
	// pre-fee profit percent is (ProfitRatio - 1) * 100.
	ProfitRatio   float64 `json:"profit_ratio"`
	ProfitPercent float64 `json:"profit_percent"`

	// MaxAmount is the largest starting amount executable without any hop
	// consuming more than the utilization ceiling of its quoted liquidity.
	MaxAmount   float64 `json:"max_amount"`
	GrossProfit float64 `json:"gross_profit"`

	// Fee-adjusted figures. Profitable is false until net profit after
	// fees is strictly positive.
	NetProfit        float64 `json:"net_profit"`
	NetProfitPercent float64 `json:"net_profit_percent"`
	Profitable       bool    `json:"profitable"`

	DetectedAt time.Time `json:"detected_at"`
}

// Hops returns the number of trades in the loop.
func (l ArbitrageLoop) Hops() int {
	return len(l.Steps)
}

// AnalysisReport summarizes one analysis run.
type AnalysisReport struct {
	TotalPairs              int       `json:"total_pairs"`
	ValidOrderBooks         int       `json:"valid_order_books"`
	OpportunitiesFound      int       `json:"opportunities_found"`
	ProfitableOpportunities int       `json:"profitable_opportunities"`
	AnalysisTimeMs          int64     `json:"analysis_time_ms"`
	Timestamp               time.Time `json:"timestamp"`
}

// AnalysisResult is the complete output of one analysis run.
type AnalysisResult struct {
	Opportunities []ArbitrageLoop `json:"opportunities"`
	Analysis      AnalysisReport  `json:"analysis"`
}

// CachedOpportunities is the read-back shape of the latest completed run.
type CachedOpportunities struct {
	Opportunities []ArbitrageLoop `json:"opportunities"`
	Count         int             `json:"count"`
	Age           time.Duration   `json:"age"`
}
