package scenario

import (
	"errors"

	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/pool"
	"rangeAMM/internal/positions"
	"rangeAMM/internal/registry"
	"rangeAMM/internal/router"
	"rangeAMM/internal/token"
)

// errorTags maps the expect_error values a step may assert to the errors they accept.
var errorTags = map[string][]error{
	"overflow":               {fixedpoint.ErrOverflow, fixedpoint.ErrUnderflow},
	"invalid_tick":           {fixedpoint.ErrInvalidTick},
	"invalid_sqrt_ratio":     {fixedpoint.ErrInvalidSqrtRatio},
	"already_initialized":    {pool.ErrAlreadyInitialized},
	"not_initialized":        {pool.ErrNotInitialized},
	"price_out_of_range":     {pool.ErrPriceOutOfRange},
	"insufficient_tokens":    {pool.ErrInsufficientTokensProvided},
	"insufficient_liquidity": {pool.ErrInsufficientLiquidity, router.ErrInsufficientLiquidity},
	"no_liquidity":           {pool.ErrNoLiquidity},
	"zero_liquidity":         {pool.ErrZeroLiquidity, positions.ErrZeroLiquidity},
	"zero_amount":            {pool.ErrZeroAmount, router.ErrZeroAmount},
	"invalid_price_limit":    {pool.ErrInvalidPriceLimit},
	"locked":                 {pool.ErrLocked},
	"identical_tokens":       {registry.ErrIdenticalTokens},
	"zero_token":             {registry.ErrZeroToken},
	"invalid_tick_range":     {registry.ErrInvalidTickRange},
	"invalid_fee":            {registry.ErrInvalidFee},
	"pool_not_found":         {registry.ErrPoolNotFound, router.ErrPoolNotFound},
	"empty_path":             {router.ErrEmptyPath},
	"duplicate_pool":         {router.ErrDuplicatePool},
	"slippage":               {router.ErrSlippageExceeded, positions.ErrSlippageExceeded},
	"not_approved":           {positions.ErrNotApproved},
	"invalid_token":          {positions.ErrInvalidToken},
	"not_cleared":            {positions.ErrNotCleared},
	"invalid_recipient":      {positions.ErrInvalidRecipient},
	"approve_to_owner":       {positions.ErrApproveToOwner},
	"insufficient_balance":   {token.ErrInsufficientBalance},
	"zero_account":           {token.ErrZeroAccount},
}

// matchesTag reports whether err is one of the errors tag stands for.
func matchesTag(err error, tag string) bool {
	for _, target := range errorTags[tag] {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
