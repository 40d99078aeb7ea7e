package aggregate

import (
	"math/big"
	"time"
)

const ratioScale = 18

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	text := new(big.Rat).SetFrac(abs, denom).FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

func computeFeeRates(fee0, fee1, reserve0, reserve1 *big.Int) (*string, *string) {
	var feeRate0, feeRate1 *string
	if rate := computeRateFromInt(fee0, reserve0); rate != "" {
		feeRate0 = &rate
	}
	if rate := computeRateFromInt(fee1, reserve1); rate != "" {
		feeRate1 = &rate
	}
	return feeRate0, feeRate1
}

func computeRateFromInt(fee, reserve *big.Int) string {
	if fee == nil || fee.Sign() == 0 || reserve == nil || reserve.Sign() <= 0 {
		return ""
	}
	return new(big.Rat).SetFrac(fee, reserve).FloatString(ratioScale)
}

// priceOf converts a Q64.96 square-root price into token1 per token0.
func priceOf(sqrtPriceX96 *big.Int) *big.Rat {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return nil
	}
	squared := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	return new(big.Rat).SetFrac(squared, q192)
}

// valueInToken1 prices amount0 at price and adds amount1.
func valueInToken1(amount0, amount1 *big.Int, price *big.Rat) *big.Rat {
	value := new(big.Rat).Mul(new(big.Rat).SetInt(amount0), price)
	return value.Add(value, new(big.Rat).SetInt(amount1))
}

// computeAPR annualizes the window's fees over the pool's end-of-window reserves, both
// valued in token1 at the pool's last price.
func computeAPR(fee0, fee1, reserve0, reserve1, sqrtPriceX96 *big.Int, windowSeconds uint64) *string {
	if windowSeconds == 0 || reserve0 == nil || reserve1 == nil {
		return nil
	}
	price := priceOf(sqrtPriceX96)
	if price == nil {
		return nil
	}
	tvl := valueInToken1(reserve0, reserve1, price)
	if tvl.Sign() <= 0 {
		return nil
	}
	fees := valueInToken1(fee0, fee1, price)

	yearSeconds := big.NewRat(int64(365*24*time.Hour/time.Second), 1)
	apr := new(big.Rat).Quo(fees, tvl)
	apr.Mul(apr, yearSeconds)
	apr.Quo(apr, big.NewRat(int64(windowSeconds), 1))
	val := apr.FloatString(ratioScale)
	return &val
}
