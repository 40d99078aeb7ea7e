package fixedpoint

import "github.com/holiman/uint256"

// GetLiquidityForAmount0 returns the liquidity that amount0 buys across [sqrtA, sqrtB].
func GetLiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0 *uint256.Int) (*uint256.Int, error) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Eq(sqrtRatioBX96) {
		return nil, ErrDivisionByZero
	}
	intermediate, err := MulDiv(sqrtRatioAX96, sqrtRatioBX96, Q96)
	if err != nil {
		return nil, err
	}
	liquidity, err := MulDiv(amount0, intermediate, new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96))
	if err != nil {
		return nil, err
	}
	return ToUint128(liquidity)
}

// GetLiquidityForAmount1 returns the liquidity that amount1 buys across [sqrtA, sqrtB].
func GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1 *uint256.Int) (*uint256.Int, error) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.Eq(sqrtRatioBX96) {
		return nil, ErrDivisionByZero
	}
	liquidity, err := MulDiv(amount1, Q96, new(uint256.Int).Sub(sqrtRatioBX96, sqrtRatioAX96))
	if err != nil {
		return nil, err
	}
	return ToUint128(liquidity)
}

// GetLiquidityForAmounts returns the largest liquidity both amounts can fund at the current price.
func GetLiquidityForAmounts(sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}

	switch {
	case sqrtRatioX96.Cmp(sqrtRatioAX96) <= 0:
		return GetLiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0)
	case sqrtRatioX96.Lt(sqrtRatioBX96):
		liquidity0, err := GetLiquidityForAmount0(sqrtRatioX96, sqrtRatioBX96, amount0)
		if err != nil {
			return nil, err
		}
		liquidity1, err := GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioX96, amount1)
		if err != nil {
			return nil, err
		}
		if liquidity0.Lt(liquidity1) {
			return liquidity0, nil
		}
		return liquidity1, nil
	default:
		return GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1)
	}
}
