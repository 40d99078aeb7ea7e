package fixedpoint

import "github.com/holiman/uint256"

// MulDiv returns floor(a*b/denominator) with a 512-bit intermediate product.
func MulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	result, overflow := new(uint256.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		return nil, ErrOverflow
	}
	return result, nil
}

// MulDivRoundingUp returns ceil(a*b/denominator).
func MulDivRoundingUp(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	result, err := MulDiv(a, b, denominator)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(a, b, denominator).Sign() > 0 {
		if result.Eq(MaxUint256) {
			return nil, ErrOverflow
		}
		result.AddUint64(result, 1)
	}
	return result, nil
}

// DivRoundingUp returns ceil(a/b).
func DivRoundingUp(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	quotient := new(uint256.Int).Div(a, b)
	if !new(uint256.Int).Mod(a, b).IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	return quotient, nil
}
