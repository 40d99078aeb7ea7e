// Package router trades a token pair across an ordered path of pools of that pair.
package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/notify"
	"rangeAMM/internal/pool"
	"rangeAMM/internal/registry"
	"rangeAMM/internal/txn"
)

var (
	ErrPoolNotFound          = errors.New("router: pool not found")
	ErrEmptyPath             = errors.New("router: empty path")
	ErrDuplicatePool         = errors.New("router: pool appears twice in path")
	ErrSlippageExceeded      = errors.New("router: slippage exceeded")
	ErrInsufficientLiquidity = errors.New("router: insufficient liquidity along path")
	ErrZeroAmount            = errors.New("router: zero amount")
)

// Hop is one pool's share of a routed trade.
type Hop struct {
	Pool              common.Address
	AmountIn          *uint256.Int
	AmountOut         *uint256.Int
	SqrtPriceX96After *uint256.Int
	TickAfter         int32

	specified *big.Int
}

// Quote is the outcome of a routed trade, simulated or executed.
type Quote struct {
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	Hops      []Hop
}

// ExactInputParams sells AmountIn of TokenIn along Path.
type ExactInputParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Path             []int
	Payer            common.Address
	Recipient        common.Address
	AmountIn         *uint256.Int
	AmountOutMinimum *uint256.Int
}

// ExactOutputParams buys AmountOut of TokenOut along Path.
type ExactOutputParams struct {
	TokenIn         common.Address
	TokenOut        common.Address
	Path            []int
	Payer           common.Address
	Recipient       common.Address
	AmountOut       *uint256.Int
	AmountInMaximum *uint256.Int
}

type Router struct {
	address   common.Address
	registry  *registry.Registry
	vault     pool.Vault
	publisher notify.Publisher
	logger    *zap.Logger
}

func New(address common.Address, reg *registry.Registry, vault pool.Vault, publisher notify.Publisher, logger *zap.Logger) *Router {
	if publisher == nil {
		publisher = notify.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{address: address, registry: reg, vault: vault, publisher: publisher, logger: logger}
}

func (r *Router) Address() common.Address { return r.address }

func (r *Router) resolve(tokenIn, tokenOut common.Address, path []int) ([]*pool.Pool, bool, error) {
	if len(path) == 0 {
		return nil, false, ErrEmptyPath
	}
	if _, _, err := registry.SortTokens(tokenIn, tokenOut); err != nil {
		return nil, false, err
	}
	zeroForOne := bytes.Compare(tokenIn.Bytes(), tokenOut.Bytes()) < 0

	pools := make([]*pool.Pool, 0, len(path))
	seen := make(map[int]bool, len(path))
	for _, index := range path {
		if seen[index] {
			return nil, false, fmt.Errorf("%w: index %d", ErrDuplicatePool, index)
		}
		seen[index] = true
		p, err := r.registry.PoolAt(tokenIn, tokenOut, index)
		if err != nil {
			if errors.Is(err, registry.ErrPoolNotFound) {
				return nil, false, fmt.Errorf("%w: index %d", ErrPoolNotFound, index)
			}
			return nil, false, err
		}
		pools = append(pools, p)
	}
	return pools, zeroForOne, nil
}

// walk splits amount across pools in path order. exactIn amounts are inputs, otherwise
// outputs. Pools without liquidity are skipped. The walk stops once amount is used up.
func walk(pools []*pool.Pool, zeroForOne, exactIn bool, amount *uint256.Int) (Quote, *uint256.Int, error) {
	remaining := amount.Clone()
	quote := Quote{AmountIn: new(uint256.Int), AmountOut: new(uint256.Int)}

	for _, p := range pools {
		if remaining.IsZero() {
			break
		}
		specified := remaining.ToBig()
		if !exactIn {
			specified.Neg(specified)
		}
		result, err := p.Quote(zeroForOne, specified, nil)
		if errors.Is(err, pool.ErrNoLiquidity) {
			continue
		}
		if err != nil {
			return Quote{}, nil, fmt.Errorf("quote %s: %w", p.Address().Hex(), err)
		}
		if !result.Filled() {
			continue
		}

		in, out := result.Amount0, result.Amount1
		if !zeroForOne {
			in, out = out, in
		}
		amountIn, err := fixedpoint.FromBig(in)
		if err != nil {
			return Quote{}, nil, err
		}
		amountOut, err := fixedpoint.FromBig(new(big.Int).Neg(out))
		if err != nil {
			return Quote{}, nil, err
		}

		used := amountOut
		if exactIn {
			used = amountIn
		}
		remaining.Sub(remaining, used)
		quote.AmountIn.Add(quote.AmountIn, amountIn)
		quote.AmountOut.Add(quote.AmountOut, amountOut)
		quote.Hops = append(quote.Hops, Hop{
			Pool:              p.Address(),
			AmountIn:          amountIn,
			AmountOut:         amountOut,
			SqrtPriceX96After: result.SqrtPriceX96,
			TickAfter:         result.Tick,
			specified:         specified,
		})
	}
	return quote, remaining, nil
}

// QuoteExactInput simulates ExactInput without changing any state. When the path cannot
// absorb the whole input, AmountIn reports what it did absorb.
func (r *Router) QuoteExactInput(tokenIn, tokenOut common.Address, path []int, amountIn *uint256.Int) (Quote, error) {
	if amountIn == nil || amountIn.IsZero() {
		return Quote{}, ErrZeroAmount
	}
	pools, zeroForOne, err := r.resolve(tokenIn, tokenOut, path)
	if err != nil {
		return Quote{}, err
	}
	quote, _, err := walk(pools, zeroForOne, true, amountIn)
	return quote, err
}

// QuoteExactOutput simulates ExactOutput without changing any state.
func (r *Router) QuoteExactOutput(tokenIn, tokenOut common.Address, path []int, amountOut *uint256.Int) (Quote, error) {
	if amountOut == nil || amountOut.IsZero() {
		return Quote{}, ErrZeroAmount
	}
	pools, zeroForOne, err := r.resolve(tokenIn, tokenOut, path)
	if err != nil {
		return Quote{}, err
	}
	quote, remaining, err := walk(pools, zeroForOne, false, amountOut)
	if err != nil {
		return Quote{}, err
	}
	if !remaining.IsZero() {
		return Quote{}, fmt.Errorf("%w: %s of %s unfilled", ErrInsufficientLiquidity, remaining.ToBig(), amountOut.ToBig())
	}
	return quote, nil
}

// ExactInput quotes the whole path, enforces AmountOutMinimum and then executes every hop
// atomically, paying each pool from Payer.
func (r *Router) ExactInput(ctx context.Context, params ExactInputParams) (Quote, error) {
	quote, err := r.QuoteExactInput(params.TokenIn, params.TokenOut, params.Path, params.AmountIn)
	if err != nil {
		return Quote{}, err
	}
	if params.AmountOutMinimum != nil && quote.AmountOut.Lt(params.AmountOutMinimum) {
		return Quote{}, fmt.Errorf("%w: out %s < minimum %s", ErrSlippageExceeded, quote.AmountOut.ToBig(), params.AmountOutMinimum.ToBig())
	}
	if err := r.execute(ctx, params.TokenIn, params.TokenOut, params.Payer, params.Recipient, quote); err != nil {
		return Quote{}, err
	}
	r.logger.Debug("router exact input",
		zap.String("amount_in", quote.AmountIn.ToBig().String()),
		zap.String("amount_out", quote.AmountOut.ToBig().String()),
		zap.Int("hops", len(quote.Hops)),
	)
	return quote, nil
}

// ExactOutput quotes the whole path, enforces AmountInMaximum and then executes every hop
// atomically, paying each pool from Payer.
func (r *Router) ExactOutput(ctx context.Context, params ExactOutputParams) (Quote, error) {
	quote, err := r.QuoteExactOutput(params.TokenIn, params.TokenOut, params.Path, params.AmountOut)
	if err != nil {
		return Quote{}, err
	}
	if params.AmountInMaximum != nil && quote.AmountIn.Gt(params.AmountInMaximum) {
		return Quote{}, fmt.Errorf("%w: in %s > maximum %s", ErrSlippageExceeded, quote.AmountIn.ToBig(), params.AmountInMaximum.ToBig())
	}
	if err := r.execute(ctx, params.TokenIn, params.TokenOut, params.Payer, params.Recipient, quote); err != nil {
		return Quote{}, err
	}
	r.logger.Debug("router exact output",
		zap.String("amount_in", quote.AmountIn.ToBig().String()),
		zap.String("amount_out", quote.AmountOut.ToBig().String()),
		zap.Int("hops", len(quote.Hops)),
	)
	return quote, nil
}

func (r *Router) execute(ctx context.Context, tokenIn, tokenOut, payer, recipient common.Address, quote Quote) error {
	zeroForOne := bytes.Compare(tokenIn.Bytes(), tokenOut.Bytes()) < 0
	pools := make([]*pool.Pool, 0, len(quote.Hops))
	parts := []txn.Revertible{r.vault, r.publisher}
	for _, hop := range quote.Hops {
		p, err := r.registry.Lookup(hop.Pool)
		if err != nil {
			return err
		}
		pools = append(pools, p)
		parts = append(parts, p)
	}

	return txn.Run(func() error {
		for i, hop := range quote.Hops {
			p := pools[i]
			result, err := p.Swap(ctx, r.address, recipient, zeroForOne, hop.specified, nil, p.PayFrom(payer), nil)
			if err != nil {
				return fmt.Errorf("swap %s: %w", hop.Pool.Hex(), err)
			}
			if !result.SqrtPriceX96.Eq(hop.SqrtPriceX96After) {
				return fmt.Errorf("swap %s diverged from its quote", hop.Pool.Hex())
			}
		}
		return nil
	}, parts...)
}
