package model

// Pool is the persisted registry record of an engine pool.
type Pool struct {
	ChainID      uint64 `json:"chain_id"`
	Address      string `json:"address"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Fee          uint32 `json:"fee"`
	TickLower    int32  `json:"tick_lower"`
	TickUpper    int32  `json:"tick_upper"`
	Index        int    `json:"index"`
	CreatedAtSeq uint64 `json:"created_at_seq"`
}
