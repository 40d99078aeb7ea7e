package model

// Event names shared by the encoder, decoder and aggregator.
const (
	EventPoolCreated       = "PoolCreated"
	EventInitialize        = "Initialize"
	EventMint              = "Mint"
	EventBurn              = "Burn"
	EventCollect           = "Collect"
	EventSwap              = "Swap"
	EventTransfer          = "Transfer"
	EventIncreaseLiquidity = "IncreaseLiquidity"
	EventDecreaseLiquidity = "DecreaseLiquidity"
	EventCollectPosition   = "CollectPosition"
)

// PoolCreatedEventData is published by the registry for every new pool.
type PoolCreatedEventData struct {
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Fee       uint32 `json:"fee"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Pool      string `json:"pool"`
}

// InitializeEventData is published once when a pool receives its starting price.
type InitializeEventData struct {
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
}

// SwapEventData is the Swap payload. Amounts are signed from the pool's point of view.
type SwapEventData struct {
	Sender       string `json:"sender"`
	Recipient    string `json:"recipient"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Liquidity    string `json:"liquidity"`
	Tick         int32  `json:"tick"`
}

// MintEventData is the Mint payload.
type MintEventData struct {
	Sender    string `json:"sender"`
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// BurnEventData is the Burn payload.
type BurnEventData struct {
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// CollectEventData is the pool-level Collect payload.
type CollectEventData struct {
	Owner     string `json:"owner"`
	Recipient string `json:"recipient"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// TransferEventData records a position handle changing hands. From is the zero
// address on mint and To is the zero address on burn.
type TransferEventData struct {
	From       string `json:"from"`
	To         string `json:"to"`
	PositionID string `json:"position_id"`
}

// LiquidityEventData is the IncreaseLiquidity / DecreaseLiquidity payload.
type LiquidityEventData struct {
	PositionID string `json:"position_id"`
	Liquidity  string `json:"liquidity"`
	Amount0    string `json:"amount0"`
	Amount1    string `json:"amount1"`
}

// PositionCollectEventData is the position ledger Collect payload.
type PositionCollectEventData struct {
	PositionID string `json:"position_id"`
	Recipient  string `json:"recipient"`
	Amount0    string `json:"amount0"`
	Amount1    string `json:"amount1"`
}
