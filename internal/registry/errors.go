package registry

import "errors"

var (
	ErrIdenticalTokens  = errors.New("registry: identical tokens")
	ErrZeroToken        = errors.New("registry: zero token")
	ErrInvalidTickRange = errors.New("registry: invalid tick range")
	ErrInvalidFee       = errors.New("registry: invalid fee")
	ErrPoolNotFound     = errors.New("registry: pool not found")
)
