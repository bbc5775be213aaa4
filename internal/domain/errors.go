package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNoTradingPairs   = errors.New("no valid trading pairs found")
	ErrCapacityExceeded = errors.New("subscriber capacity exceeded")
	ErrUnknownRegion    = errors.New("unknown cache region")
)
