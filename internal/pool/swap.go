package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/model"
)

// SwapResult is the outcome of a swap. Amounts are signed from the pool's side:
// positive flows into the pool, negative flows out.
type SwapResult struct {
	Amount0      *big.Int
	Amount1      *big.Int
	FeeAmount    *uint256.Int
	SqrtPriceX96 *uint256.Int
	Tick         int32
	Liquidity    *uint256.Int
}

// Filled reports whether the swap moved any tokens.
func (r SwapResult) Filled() bool {
	return r.Amount0.Sign() != 0 || r.Amount1.Sign() != 0
}

// Quote simulates a swap against the current state without changing it.
func (p *Pool) Quote(zeroForOne bool, amountSpecified *big.Int, sqrtPriceLimitX96 *uint256.Int) (SwapResult, error) {
	return p.simulate(zeroForOne, amountSpecified, sqrtPriceLimitX96)
}

// simulate moves the price toward the range bound in the trade direction, stopping early
// at sqrtPriceLimitX96 when given. A nil limit means the range bound. Liquidity is constant
// across the whole range, so one step settles the trade.
func (p *Pool) simulate(zeroForOne bool, amountSpecified *big.Int, sqrtPriceLimitX96 *uint256.Int) (SwapResult, error) {
	if !p.slot.initialized {
		return SwapResult{}, ErrNotInitialized
	}
	if amountSpecified == nil || amountSpecified.Sign() == 0 {
		return SwapResult{}, ErrZeroAmount
	}
	if p.slot.liquidity.IsZero() {
		return SwapResult{}, ErrNoLiquidity
	}

	current := &p.slot.sqrtPriceX96
	target, err := p.swapTarget(zeroForOne, sqrtPriceLimitX96)
	if err != nil {
		return SwapResult{}, err
	}

	result := SwapResult{
		Amount0:      new(big.Int),
		Amount1:      new(big.Int),
		FeeAmount:    new(uint256.Int),
		SqrtPriceX96: current.Clone(),
		Tick:         p.slot.tick,
		Liquidity:    p.slot.liquidity.Clone(),
	}
	if target.Eq(current) {
		return result, nil
	}

	exactIn := amountSpecified.Sign() > 0
	remaining, err := fixedpoint.FromBig(new(big.Int).Abs(amountSpecified))
	if err != nil {
		return SwapResult{}, err
	}
	step, err := fixedpoint.ComputeSwapStep(current, target, &p.slot.liquidity, remaining, exactIn, p.cfg.Fee)
	if err != nil {
		return SwapResult{}, err
	}

	paid, overflow := new(uint256.Int).AddOverflow(step.AmountIn, step.FeeAmount)
	if overflow {
		return SwapResult{}, fixedpoint.ErrOverflow
	}
	in, err := fixedpoint.ToInt256(paid)
	if err != nil {
		return SwapResult{}, err
	}
	out, err := fixedpoint.ToInt256(step.AmountOut)
	if err != nil {
		return SwapResult{}, err
	}
	out.Neg(out)
	if zeroForOne {
		result.Amount0, result.Amount1 = in, out
	} else {
		result.Amount0, result.Amount1 = out, in
	}

	tick, err := tickAt(step.SqrtRatioNextX96)
	if err != nil {
		return SwapResult{}, err
	}
	result.SqrtPriceX96 = step.SqrtRatioNextX96
	result.Tick = tick
	result.FeeAmount = step.FeeAmount
	return result, nil
}

func (p *Pool) swapTarget(zeroForOne bool, limit *uint256.Int) (*uint256.Int, error) {
	current := &p.slot.sqrtPriceX96
	if zeroForOne {
		if limit == nil {
			return p.sqrtLower.Clone(), nil
		}
		if !limit.Lt(current) || !limit.Gt(fixedpoint.MinSqrtRatio) {
			return nil, fmt.Errorf("%w: %s for zeroForOne at %s", ErrInvalidPriceLimit, limit.ToBig(), current.ToBig())
		}
		if limit.Lt(&p.sqrtLower) {
			return p.sqrtLower.Clone(), nil
		}
		return limit.Clone(), nil
	}
	if limit == nil {
		return p.sqrtUpper.Clone(), nil
	}
	if !limit.Gt(current) || !limit.Lt(fixedpoint.MaxSqrtRatio) {
		return nil, fmt.Errorf("%w: %s for oneForZero at %s", ErrInvalidPriceLimit, limit.ToBig(), current.ToBig())
	}
	if limit.Gt(&p.sqrtUpper) {
		return p.sqrtUpper.Clone(), nil
	}
	return limit.Clone(), nil
}

// Swap trades token0 for token1 when zeroForOne, the reverse otherwise. A positive
// amountSpecified is an exact input, a negative one an exact output. Reaching the price
// limit or the range bound first is a partial fill, not an error. The output is paid to
// recipient before the funder is asked for the input, which the pool then verifies.
func (p *Pool) Swap(ctx context.Context, sender, recipient common.Address, zeroForOne bool, amountSpecified *big.Int, sqrtPriceLimitX96 *uint256.Int, funder SwapFunder, data []byte) (SwapResult, error) {
	var result SwapResult
	err := p.atomic(func() error {
		var err error
		if result, err = p.simulate(zeroForOne, amountSpecified, sqrtPriceLimitX96); err != nil {
			return err
		}
		if !result.Filled() {
			return nil
		}
		if funder == nil {
			return ErrNilFunder
		}

		next := p.slot
		next.sqrtPriceX96 = *result.SqrtPriceX96
		next.tick = result.Tick
		if !result.FeeAmount.IsZero() {
			growth, err := fixedpoint.MulDiv(result.FeeAmount, fixedpoint.Q128, &p.slot.liquidity)
			if err != nil {
				return err
			}
			accumulator := &next.feeGrowthGlobal1X128
			if zeroForOne {
				accumulator = &next.feeGrowthGlobal0X128
			}
			if _, overflow := accumulator.AddOverflow(accumulator, growth); overflow {
				return fmt.Errorf("fee growth: %w", fixedpoint.ErrOverflow)
			}
		}
		p.setSlot(next)

		inToken, outToken := p.cfg.Token0, p.cfg.Token1
		amountIn, amountOut := result.Amount0, result.Amount1
		if !zeroForOne {
			inToken, outToken = outToken, inToken
			amountIn, amountOut = amountOut, amountIn
		}
		if amountOut.Sign() < 0 {
			paid, err := fixedpoint.FromBig(new(big.Int).Neg(amountOut))
			if err != nil {
				return err
			}
			if err := p.vault.Transfer(outToken, p.cfg.Address, recipient, paid); err != nil {
				return fmt.Errorf("pay swap output: %w", err)
			}
		}

		before := p.vault.BalanceOf(inToken, p.cfg.Address)
		if err := funder.FundSwap(ctx, new(big.Int).Set(result.Amount0), new(big.Int).Set(result.Amount1), data); err != nil {
			return fmt.Errorf("fund swap: %w", err)
		}
		owed, err := fixedpoint.FromBig(amountIn)
		if err != nil {
			return err
		}
		required, overflow := new(uint256.Int).AddOverflow(before, owed)
		if after := p.vault.BalanceOf(inToken, p.cfg.Address); overflow || after.Lt(required) {
			return fmt.Errorf("%w: %s wants %s", ErrInsufficientTokensProvided, inToken.Hex(), amountIn)
		}

		p.logger.Debug("pool swap",
			zap.Bool("zero_for_one", zeroForOne),
			zap.String("amount0", result.Amount0.String()),
			zap.String("amount1", result.Amount1.String()),
			zap.String("sqrt_price_x96", decimal(result.SqrtPriceX96)),
			zap.Int32("tick", result.Tick),
		)
		return p.publisher.Publish(p.cfg.Address, model.EventSwap, model.SwapEventData{
			Sender:       sender.Hex(),
			Recipient:    recipient.Hex(),
			Amount0:      result.Amount0.String(),
			Amount1:      result.Amount1.String(),
			SqrtPriceX96: decimal(result.SqrtPriceX96),
			Liquidity:    decimal(&p.slot.liquidity),
			Tick:         result.Tick,
		})
	})
	if err != nil {
		return SwapResult{}, err
	}
	return result, nil
}
