// Package registry creates pools on demand and keeps an append-only index of them.
package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/model"
	"rangeAMM/internal/notify"
	"rangeAMM/internal/pool"
	"rangeAMM/internal/txn"
)

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

// Registry maps canonical token pairs to the pools created for them. Entries are only
// ever appended; a creation inside a reverted snapshot is dropped again.
type Registry struct {
	address   common.Address
	vault     pool.Vault
	publisher notify.Publisher
	logger    *zap.Logger

	journal txn.Journal
	byPair  map[pairKey][]common.Address
	pools   map[common.Address]*pool.Pool
	all     []common.Address
}

// New returns an empty registry deploying pools from address.
func New(address common.Address, vault pool.Vault, publisher notify.Publisher, logger *zap.Logger) *Registry {
	if publisher == nil {
		publisher = notify.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		address:   address,
		vault:     vault,
		publisher: publisher,
		logger:    logger,
		byPair:    make(map[pairKey][]common.Address),
		pools:     make(map[common.Address]*pool.Pool),
	}
}

func (r *Registry) Address() common.Address { return r.address }

// GetPool returns the index-th pool of the pair, or the zero address when there is none.
func (r *Registry) GetPool(tokenA, tokenB common.Address, index int) (common.Address, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	list := r.byPair[pairKey{token0, token1}]
	if index < 0 || index >= len(list) {
		return common.Address{}, nil
	}
	return list[index], nil
}

// PoolAt is GetPool resolved to the pool itself.
func (r *Registry) PoolAt(tokenA, tokenB common.Address, index int) (*pool.Pool, error) {
	address, err := r.GetPool(tokenA, tokenB, index)
	if err != nil {
		return nil, err
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%w: index %d of %s/%s", ErrPoolNotFound, index, tokenA.Hex(), tokenB.Hex())
	}
	return r.pools[address], nil
}

// Pools lists every pool of the pair in creation order.
func (r *Registry) Pools(tokenA, tokenB common.Address) ([]common.Address, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	list := r.byPair[pairKey{token0, token1}]
	out := make([]common.Address, len(list))
	copy(out, list)
	return out, nil
}

func (r *Registry) AllPools() []common.Address {
	out := make([]common.Address, len(r.all))
	copy(out, r.all)
	return out
}

func (r *Registry) PoolCount() int { return len(r.all) }

// Lookup resolves a pool by address.
func (r *Registry) Lookup(address common.Address) (*pool.Pool, error) {
	p, ok := r.pools[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, address.Hex())
	}
	return p, nil
}

func validateParams(tickLower, tickUpper int32, fee uint32) error {
	if tickLower >= tickUpper || tickLower < fixedpoint.MinTick || tickUpper > fixedpoint.MaxTick {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidTickRange, tickLower, tickUpper)
	}
	if fee >= fixedpoint.FeeDenominator {
		return fmt.Errorf("%w: %d", ErrInvalidFee, fee)
	}
	return nil
}

// CreatePool returns the pool matching the parameters, creating it when it does not exist yet.
func (r *Registry) CreatePool(tokenA, tokenB common.Address, tickLower, tickUpper int32, fee uint32) (common.Address, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	if err := validateParams(tickLower, tickUpper, fee); err != nil {
		return common.Address{}, err
	}

	key := pairKey{token0, token1}
	for _, address := range r.byPair[key] {
		cfg := r.pools[address].Config()
		if cfg.TickLower == tickLower && cfg.TickUpper == tickUpper && cfg.Fee == fee {
			return address, nil
		}
	}

	address, err := ComputePoolAddress(r.address, token0, token1, tickLower, tickUpper, fee)
	if err != nil {
		return common.Address{}, err
	}
	err = txn.Run(func() error {
		p, err := pool.New(pool.Config{
			Address:   address,
			Token0:    token0,
			Token1:    token1,
			TickLower: tickLower,
			TickUpper: tickUpper,
			Fee:       fee,
		}, r.vault, r.publisher, r.logger)
		if err != nil {
			return err
		}
		r.append(key, p)

		r.logger.Debug("pool created",
			zap.String("pool", address.Hex()),
			zap.String("token0", token0.Hex()),
			zap.String("token1", token1.Hex()),
			zap.Int32("tick_lower", tickLower),
			zap.Int32("tick_upper", tickUpper),
			zap.Uint32("fee", fee),
		)
		return r.publisher.Publish(r.address, model.EventPoolCreated, model.PoolCreatedEventData{
			Token0:    token0.Hex(),
			Token1:    token1.Hex(),
			Fee:       fee,
			TickLower: tickLower,
			TickUpper: tickUpper,
			Pool:      address.Hex(),
		})
	}, r, r.publisher)
	if err != nil {
		return common.Address{}, err
	}
	return address, nil
}

func (r *Registry) append(key pairKey, p *pool.Pool) {
	address := p.Address()
	pairLen, allLen := len(r.byPair[key]), len(r.all)
	r.journal.Append(func() {
		delete(r.pools, address)
		r.all = r.all[:allLen]
		if pairLen == 0 {
			delete(r.byPair, key)
		} else {
			r.byPair[key] = r.byPair[key][:pairLen]
		}
	})
	r.pools[address] = p
	r.all = append(r.all, address)
	r.byPair[key] = append(r.byPair[key], address)
}

// CreateAndInitializePoolIfNecessary creates the pool when missing and initializes it
// at sqrtPriceX96 when it has no price yet.
func (r *Registry) CreateAndInitializePoolIfNecessary(ctx context.Context, tokenA, tokenB common.Address, tickLower, tickUpper int32, fee uint32, sqrtPriceX96 *uint256.Int) (*pool.Pool, error) {
	var p *pool.Pool
	err := txn.Run(func() error {
		address, err := r.CreatePool(tokenA, tokenB, tickLower, tickUpper, fee)
		if err != nil {
			return err
		}
		p = r.pools[address]
		if p.Slot0().Initialized {
			return nil
		}
		return p.Initialize(ctx, sqrtPriceX96)
	}, r, r.publisher)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Records returns every pool as a persistable record.
func (r *Registry) Records(chainID uint64) []model.Pool {
	out := make([]model.Pool, 0, len(r.all))
	indexes := make(map[pairKey]int)
	for seq, address := range r.all {
		cfg := r.pools[address].Config()
		key := pairKey{cfg.Token0, cfg.Token1}
		out = append(out, model.Pool{
			ChainID:      chainID,
			Address:      address.Hex(),
			Token0:       cfg.Token0.Hex(),
			Token1:       cfg.Token1.Hex(),
			Fee:          cfg.Fee,
			TickLower:    cfg.TickLower,
			TickUpper:    cfg.TickUpper,
			Index:        indexes[key],
			CreatedAtSeq: uint64(seq + 1),
		})
		indexes[key]++
	}
	return out
}

func (r *Registry) Snapshot() int           { return r.journal.Snapshot() }
func (r *Registry) RevertToSnapshot(id int) { r.journal.RevertToSnapshot(id) }
func (r *Registry) DiscardSnapshot(id int)  { r.journal.DiscardSnapshot(id) }
