package pool

import "errors"

var (
	ErrAlreadyInitialized         = errors.New("pool: already initialized")
	ErrNotInitialized             = errors.New("pool: not initialized")
	ErrPriceOutOfRange            = errors.New("pool: price outside range")
	ErrInsufficientTokensProvided = errors.New("pool: insufficient tokens provided")
	ErrInsufficientLiquidity      = errors.New("pool: insufficient liquidity")
	ErrNoLiquidity                = errors.New("pool: no liquidity")
	ErrZeroLiquidity              = errors.New("pool: zero liquidity")
	ErrZeroAmount                 = errors.New("pool: zero amount")
	ErrInvalidPriceLimit          = errors.New("pool: invalid price limit")
	ErrLocked                     = errors.New("pool: locked")
	ErrNilFunder                  = errors.New("pool: nil funder")
)
