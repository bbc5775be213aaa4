package domain

import "time"

// TradeStatus is the lifecycle state of an executed arbitrage trade.
type TradeStatus string

const (
	TradeStatusPending TradeStatus = "pending"
	TradeStatusFilled  TradeStatus = "filled"
	TradeStatusFailed  TradeStatus = "failed"
)

// TradeRecord is the outcome of executing an arbitrage loop. Execution itself
// happens outside this core; collaborators hand finished records back so they
// can be cached, persisted, and broadcast.
type TradeRecord struct {
	ID           string      `json:"id"`
	LoopID       string      `json:"loop_id"`
	Path         []string    `json:"path"`
	InputAmount  float64     `json:"input_amount"`
	OutputAmount float64     `json:"output_amount"`
	Profit       float64     `json:"profit"`
	Status       TradeStatus `json:"status"`
	FailureCause string      `json:"failure_cause,omitempty"`
	ExecutedAt   time.Time   `json:"executed_at"`
}
