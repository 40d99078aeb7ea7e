package fixedpoint

import "github.com/holiman/uint256"

// SwapStep is the outcome of moving the price toward a target at constant liquidity.
type SwapStep struct {
	SqrtRatioNextX96 *uint256.Int
	AmountIn         *uint256.Int
	AmountOut        *uint256.Int
	FeeAmount        *uint256.Int
}

// ComputeSwapStep swaps amountRemaining (input when exactIn, output otherwise) between the
// current price and the target price. The direction is implied by the target: a target at or
// below the current price sells token0.
func ComputeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemaining *uint256.Int, exactIn bool, feePips uint32) (SwapStep, error) {
	if feePips >= FeeDenominator {
		return SwapStep{}, ErrOverflow
	}
	zeroForOne := sqrtRatioCurrentX96.Cmp(sqrtRatioTargetX96) >= 0
	feeDenominator := uint256.NewInt(FeeDenominator)
	feeComplement := uint256.NewInt(uint64(FeeDenominator - feePips))

	var (
		next      *uint256.Int
		amountIn  *uint256.Int
		amountOut *uint256.Int
		err       error
	)

	if exactIn {
		remainingLessFee, err := MulDiv(amountRemaining, feeComplement, feeDenominator)
		if err != nil {
			return SwapStep{}, err
		}
		if zeroForOne {
			amountIn, err = GetAmount0Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
		} else {
			amountIn, err = GetAmount1Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if err != nil {
			return SwapStep{}, err
		}
		if remainingLessFee.Cmp(amountIn) >= 0 {
			next = sqrtRatioTargetX96.Clone()
		} else if next, err = GetNextSqrtPriceFromInput(sqrtRatioCurrentX96, liquidity, remainingLessFee, zeroForOne); err != nil {
			return SwapStep{}, err
		}
	} else {
		if zeroForOne {
			amountOut, err = GetAmount1Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			amountOut, err = GetAmount0Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
		}
		if err != nil {
			return SwapStep{}, err
		}
		if amountRemaining.Cmp(amountOut) >= 0 {
			next = sqrtRatioTargetX96.Clone()
		} else if next, err = GetNextSqrtPriceFromOutput(sqrtRatioCurrentX96, liquidity, amountRemaining, zeroForOne); err != nil {
			return SwapStep{}, err
		}
	}

	reachedTarget := next.Eq(sqrtRatioTargetX96)

	if zeroForOne {
		if !(reachedTarget && exactIn) {
			if amountIn, err = GetAmount0Delta(next, sqrtRatioCurrentX96, liquidity, true); err != nil {
				return SwapStep{}, err
			}
		}
		if !(reachedTarget && !exactIn) {
			if amountOut, err = GetAmount1Delta(next, sqrtRatioCurrentX96, liquidity, false); err != nil {
				return SwapStep{}, err
			}
		}
	} else {
		if !(reachedTarget && exactIn) {
			if amountIn, err = GetAmount1Delta(sqrtRatioCurrentX96, next, liquidity, true); err != nil {
				return SwapStep{}, err
			}
		}
		if !(reachedTarget && !exactIn) {
			if amountOut, err = GetAmount0Delta(sqrtRatioCurrentX96, next, liquidity, false); err != nil {
				return SwapStep{}, err
			}
		}
	}

	// exact output never pays out more than was asked for
	if !exactIn && amountOut.Gt(amountRemaining) {
		amountOut = amountRemaining.Clone()
	}

	var feeAmount *uint256.Int
	if exactIn && !reachedTarget {
		// the input is fully consumed; whatever did not move the price is fee
		feeAmount = new(uint256.Int).Sub(amountRemaining, amountIn)
	} else if feeAmount, err = MulDivRoundingUp(amountIn, uint256.NewInt(uint64(feePips)), feeComplement); err != nil {
		return SwapStep{}, err
	}

	return SwapStep{
		SqrtRatioNextX96: next,
		AmountIn:         amountIn,
		AmountOut:        amountOut,
		FeeAmount:        feeAmount,
	}, nil
}
