package model

import "time"

// PoolWindowMetrics stores aggregated activity of one pool over one time window.
// Reserves are the pool's token balances at the end of the window, reconstructed
// from the notification journal.
type PoolWindowMetrics struct {
	ChainID        uint64
	PoolAddress    string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	SwapCount      uint64
	Volume0        string
	Volume1        string
	Fee0           string
	Fee1           string
	Reserve0       *string
	Reserve1       *string
	FeeRate0       *string
	FeeRate1       *string
	APR            *string
	FeeMethod      string
	ReserveMethod  string
}
