package fixedpoint

import (
	"math/big"

	"github.com/holiman/uint256"
)

// AddDelta applies a signed liquidity delta to x, keeping the result within uint128.
func AddDelta(x *uint256.Int, delta *big.Int) (*uint256.Int, error) {
	magnitude, err := FromBig(new(big.Int).Abs(delta))
	if err != nil {
		return nil, err
	}
	if delta.Sign() < 0 {
		if magnitude.Gt(x) {
			return nil, ErrUnderflow
		}
		return new(uint256.Int).Sub(x, magnitude), nil
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, magnitude)
	if overflow {
		return nil, ErrOverflow
	}
	return ToUint128(sum)
}
