package positions

import "errors"

var (
	ErrNotApproved      = errors.New("positions: not approved")
	ErrInvalidToken     = errors.New("positions: invalid token id")
	ErrNotCleared       = errors.New("positions: position not cleared")
	ErrSlippageExceeded = errors.New("positions: slippage exceeded")
	ErrZeroLiquidity    = errors.New("positions: zero liquidity")
	ErrInvalidRecipient = errors.New("positions: invalid recipient")
	ErrApproveToOwner   = errors.New("positions: approval to current owner")
)
