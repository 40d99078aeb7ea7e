package fixedpoint

import "errors"

var (
	ErrOverflow         = errors.New("fixedpoint: overflow")
	ErrUnderflow        = errors.New("fixedpoint: underflow")
	ErrDivisionByZero   = errors.New("fixedpoint: division by zero")
	ErrInvalidTick      = errors.New("fixedpoint: tick out of bounds")
	ErrInvalidSqrtRatio = errors.New("fixedpoint: sqrt ratio out of bounds")
)
