package fixedpoint

import (
	"math/big"

	"github.com/holiman/uint256"
)

// GetNextSqrtPriceFromAmount0RoundingUp moves the price by amount of token0 at constant liquidity.
// Rounding up keeps the price on the side that favours the pool in both directions.
func GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return sqrtPX96.Clone(), nil
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, resolution)

	if add {
		product, overflow := new(uint256.Int).MulOverflow(amount, sqrtPX96)
		if !overflow {
			denominator, overflow := new(uint256.Int).AddOverflow(numerator1, product)
			if !overflow {
				return MulDivRoundingUp(numerator1, sqrtPX96, denominator)
			}
		}
		denominator := new(uint256.Int).Div(numerator1, sqrtPX96)
		if _, overflow := denominator.AddOverflow(denominator, amount); overflow {
			return nil, ErrOverflow
		}
		return DivRoundingUp(numerator1, denominator)
	}

	product, overflow := new(uint256.Int).MulOverflow(amount, sqrtPX96)
	if overflow || !numerator1.Gt(product) {
		return nil, ErrOverflow
	}
	denominator := new(uint256.Int).Sub(numerator1, product)
	next, err := MulDivRoundingUp(numerator1, sqrtPX96, denominator)
	if err != nil {
		return nil, err
	}
	return ToUint160(next)
}

// GetNextSqrtPriceFromAmount1RoundingDown moves the price by amount of token1 at constant liquidity.
func GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if liquidity.IsZero() {
		return nil, ErrDivisionByZero
	}

	if add {
		var quotient *uint256.Int
		if amount.Cmp(MaxUint160) <= 0 {
			quotient = new(uint256.Int).Lsh(amount, resolution)
			quotient.Div(quotient, liquidity)
		} else {
			var err error
			if quotient, err = MulDiv(amount, Q96, liquidity); err != nil {
				return nil, err
			}
		}
		next, overflow := new(uint256.Int).AddOverflow(sqrtPX96, quotient)
		if overflow {
			return nil, ErrOverflow
		}
		return ToUint160(next)
	}

	var (
		quotient *uint256.Int
		err      error
	)
	if amount.Cmp(MaxUint160) <= 0 {
		quotient, err = DivRoundingUp(new(uint256.Int).Lsh(amount, resolution), liquidity)
	} else {
		quotient, err = MulDivRoundingUp(amount, Q96, liquidity)
	}
	if err != nil {
		return nil, err
	}
	if !sqrtPX96.Gt(quotient) {
		return nil, ErrUnderflow
	}
	return new(uint256.Int).Sub(sqrtPX96, quotient), nil
}

// GetNextSqrtPriceFromInput returns the price after adding amountIn of the input token.
func GetNextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() {
		return nil, ErrInvalidSqrtRatio
	}
	if liquidity.IsZero() {
		return nil, ErrDivisionByZero
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

// GetNextSqrtPriceFromOutput returns the price after removing amountOut of the output token.
func GetNextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPX96.IsZero() {
		return nil, ErrInvalidSqrtRatio
	}
	if liquidity.IsZero() {
		return nil, ErrDivisionByZero
	}
	if zeroForOne {
		return GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

// GetAmount0Delta returns liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB).
func GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.IsZero() {
		return nil, ErrInvalidSqrtRatio
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, resolution)
	numerator2 := new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		scaled, err := MulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96)
		if err != nil {
			return nil, err
		}
		return DivRoundingUp(scaled, sqrtRatioAX96)
	}
	scaled, err := MulDiv(numerator1, numerator2, sqrtRatioBX96)
	if err != nil {
		return nil, err
	}
	return scaled.Div(scaled, sqrtRatioAX96), nil
}

// GetAmount1Delta returns liquidity * (sqrtB - sqrtA).
func GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	diff := new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return MulDivRoundingUp(liquidity, diff, Q96)
	}
	return MulDiv(liquidity, diff, Q96)
}

// GetAmount0DeltaSigned rounds up when liquidity is added and down when it is removed.
func GetAmount0DeltaSigned(sqrtRatioAX96, sqrtRatioBX96 *uint256.Int, liquidity *big.Int) (*big.Int, error) {
	return signedDelta(sqrtRatioAX96, sqrtRatioBX96, liquidity, GetAmount0Delta)
}

// GetAmount1DeltaSigned rounds up when liquidity is added and down when it is removed.
func GetAmount1DeltaSigned(sqrtRatioAX96, sqrtRatioBX96 *uint256.Int, liquidity *big.Int) (*big.Int, error) {
	return signedDelta(sqrtRatioAX96, sqrtRatioBX96, liquidity, GetAmount1Delta)
}

type deltaFunc func(a, b, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error)

func signedDelta(a, b *uint256.Int, liquidity *big.Int, fn deltaFunc) (*big.Int, error) {
	magnitude, err := FromBig(new(big.Int).Abs(liquidity))
	if err != nil {
		return nil, err
	}
	if _, err := ToUint128(magnitude); err != nil {
		return nil, err
	}
	amount, err := fn(a, b, magnitude, liquidity.Sign() > 0)
	if err != nil {
		return nil, err
	}
	signed, err := ToInt256(amount)
	if err != nil {
		return nil, err
	}
	if liquidity.Sign() < 0 {
		signed.Neg(signed)
	}
	return signed, nil
}
