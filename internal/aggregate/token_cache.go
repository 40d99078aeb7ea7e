package aggregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"rangeAMM/internal/model"
)

// TokenMetaSource resolves ERC20 metadata. *dex.LiveReader satisfies it.
type TokenMetaSource interface {
	TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error)
}

// TokenDecimalsCache resolves token decimals once per token. Failed lookups are cached
// as zero decimals so amounts fall back to raw units.
type TokenDecimalsCache struct {
	source TokenMetaSource

	mu   sync.RWMutex
	data map[common.Address]uint8
}

func NewTokenDecimalsCache(source TokenMetaSource) *TokenDecimalsCache {
	return &TokenDecimalsCache{source: source, data: make(map[common.Address]uint8)}
}

// Decimals returns the token's decimals, or 0 when no source is configured.
func (c *TokenDecimalsCache) Decimals(ctx context.Context, token string) (uint8, error) {
	if c == nil || c.source == nil {
		return 0, nil
	}
	if !common.IsHexAddress(token) {
		return 0, fmt.Errorf("invalid token address: %s", token)
	}
	addr := common.HexToAddress(token)

	c.mu.RLock()
	decimals, ok := c.data[addr]
	c.mu.RUnlock()
	if ok {
		return decimals, nil
	}

	meta, err := c.source.TokenMeta(ctx, addr)
	c.mu.Lock()
	c.data[addr] = meta.Decimals
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}
