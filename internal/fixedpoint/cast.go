package fixedpoint

import (
	"math/big"

	"github.com/holiman/uint256"
)

// ToUint128 fails with ErrOverflow when x does not fit in 128 bits.
func ToUint128(x *uint256.Int) (*uint256.Int, error) {
	if x.Gt(MaxUint128) {
		return nil, ErrOverflow
	}
	return x, nil
}

// ToUint160 fails with ErrOverflow when x does not fit in 160 bits.
func ToUint160(x *uint256.Int) (*uint256.Int, error) {
	if x.Gt(MaxUint160) {
		return nil, ErrOverflow
	}
	return x, nil
}

// ToInt256 converts x to a signed value, failing when it exceeds the int256 range.
func ToInt256(x *uint256.Int) (*big.Int, error) {
	if x.Gt(MaxInt256) {
		return nil, ErrOverflow
	}
	return x.ToBig(), nil
}

// FromBig converts a non-negative big integer into a uint256.
func FromBig(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return new(uint256.Int), nil
	}
	if x.Sign() < 0 {
		return nil, ErrUnderflow
	}
	out, overflow := uint256.FromBig(x)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}
