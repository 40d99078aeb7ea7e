// Package pool implements a single-range concentrated liquidity pool.
package pool

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/model"
	"rangeAMM/internal/notify"
	"rangeAMM/internal/txn"
)

// Config holds the immutable parameters of a pool.
type Config struct {
	Address   common.Address
	Token0    common.Address
	Token1    common.Address
	TickLower int32
	TickUpper int32
	Fee       uint32
}

// Validate checks token order, tick bounds and fee tier.
func (c Config) Validate() error {
	if bytes.Compare(c.Token0.Bytes(), c.Token1.Bytes()) >= 0 {
		return fmt.Errorf("token0 %s must sort before token1 %s", c.Token0.Hex(), c.Token1.Hex())
	}
	if c.TickLower >= c.TickUpper {
		return fmt.Errorf("tick range [%d, %d] is empty", c.TickLower, c.TickUpper)
	}
	if c.TickLower < fixedpoint.MinTick || c.TickUpper > fixedpoint.MaxTick {
		return fmt.Errorf("tick range [%d, %d]: %w", c.TickLower, c.TickUpper, fixedpoint.ErrInvalidTick)
	}
	if c.Fee >= fixedpoint.FeeDenominator {
		return fmt.Errorf("fee %d exceeds denominator", c.Fee)
	}
	return nil
}

type slot struct {
	sqrtPriceX96         uint256.Int
	tick                 int32
	liquidity            uint256.Int
	feeGrowthGlobal0X128 uint256.Int
	feeGrowthGlobal1X128 uint256.Int
	initialized          bool
}

// Slot0 is the pool's current price.
type Slot0 struct {
	SqrtPriceX96 *uint256.Int
	Tick         int32
	Initialized  bool
}

// State is a read-only copy of the pool's mutable state.
type State struct {
	Slot0
	Liquidity            *uint256.Int
	FeeGrowthGlobal0X128 *uint256.Int
	FeeGrowthGlobal1X128 *uint256.Int
}

// Pool owns one token pair, one fixed tick range and one fee tier. Every entry point
// is all-or-nothing: on error the pool, the vault and the publisher are rolled back.
type Pool struct {
	cfg       Config
	sqrtLower uint256.Int
	sqrtUpper uint256.Int
	vault     Vault
	publisher notify.Publisher
	logger    *zap.Logger
	journal   txn.Journal
	locked    bool
	slot      slot
	positions map[common.Address]*Position
}

func New(cfg Config, vault Vault, publisher notify.Publisher, logger *zap.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, fmt.Errorf("vault is nil")
	}
	if publisher == nil {
		publisher = notify.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqrtLower, err := fixedpoint.GetSqrtRatioAtTick(cfg.TickLower)
	if err != nil {
		return nil, err
	}
	sqrtUpper, err := fixedpoint.GetSqrtRatioAtTick(cfg.TickUpper)
	if err != nil {
		return nil, err
	}
	return &Pool{
		cfg:       cfg,
		sqrtLower: *sqrtLower,
		sqrtUpper: *sqrtUpper,
		vault:     vault,
		publisher: publisher,
		logger:    logger.With(zap.String("pool", cfg.Address.Hex())),
		positions: make(map[common.Address]*Position),
	}, nil
}

func (p *Pool) Address() common.Address { return p.cfg.Address }
func (p *Pool) Config() Config          { return p.cfg }

// PriceBounds returns the sqrt prices of the range's lower and upper ticks.
func (p *Pool) PriceBounds() (*uint256.Int, *uint256.Int) {
	return p.sqrtLower.Clone(), p.sqrtUpper.Clone()
}

func (p *Pool) Slot0() Slot0 {
	return Slot0{
		SqrtPriceX96: p.slot.sqrtPriceX96.Clone(),
		Tick:         p.slot.tick,
		Initialized:  p.slot.initialized,
	}
}

func (p *Pool) State() State {
	return State{
		Slot0:                p.Slot0(),
		Liquidity:            p.slot.liquidity.Clone(),
		FeeGrowthGlobal0X128: p.slot.feeGrowthGlobal0X128.Clone(),
		FeeGrowthGlobal1X128: p.slot.feeGrowthGlobal1X128.Clone(),
	}
}

// GetPosition returns a copy of owner's position; unknown owners get the zero position.
func (p *Pool) GetPosition(owner common.Address) Position {
	return p.position(owner)
}

// Reserves returns the pool's token balances held in the vault.
func (p *Pool) Reserves() (*uint256.Int, *uint256.Int) {
	return p.vault.BalanceOf(p.cfg.Token0, p.cfg.Address), p.vault.BalanceOf(p.cfg.Token1, p.cfg.Address)
}

func (p *Pool) Snapshot() int           { return p.journal.Snapshot() }
func (p *Pool) RevertToSnapshot(id int) { p.journal.RevertToSnapshot(id) }
func (p *Pool) DiscardSnapshot(id int)  { p.journal.DiscardSnapshot(id) }

func (p *Pool) setSlot(next slot) {
	prev := p.slot
	p.journal.Append(func() { p.slot = prev })
	p.slot = next
}

// atomic runs fn under the pool lock inside one snapshot of the pool, its vault and its publisher.
func (p *Pool) atomic(fn func() error) error {
	if p.locked {
		return ErrLocked
	}
	p.locked = true
	defer func() { p.locked = false }()
	return txn.Run(fn, p, p.vault, p.publisher)
}

// Initialize sets the starting price. It can only be called once and the price must lie
// within the pool's range.
func (p *Pool) Initialize(ctx context.Context, sqrtPriceX96 *uint256.Int) error {
	return p.atomic(func() error {
		if p.slot.initialized {
			return ErrAlreadyInitialized
		}
		if sqrtPriceX96.Lt(&p.sqrtLower) || sqrtPriceX96.Gt(&p.sqrtUpper) {
			return fmt.Errorf("%w: %s not in [%s, %s]", ErrPriceOutOfRange, sqrtPriceX96.ToBig(), p.sqrtLower.ToBig(), p.sqrtUpper.ToBig())
		}
		tick, err := tickAt(sqrtPriceX96)
		if err != nil {
			return err
		}
		next := p.slot
		next.sqrtPriceX96 = *sqrtPriceX96
		next.tick = tick
		next.initialized = true
		p.setSlot(next)

		p.logger.Debug("pool initialize", zap.String("sqrt_price_x96", sqrtPriceX96.ToBig().String()), zap.Int32("tick", tick))
		return p.publisher.Publish(p.cfg.Address, model.EventInitialize, model.InitializeEventData{
			SqrtPriceX96: sqrtPriceX96.ToBig().String(),
			Tick:         tick,
		})
	})
}

func tickAt(sqrtPriceX96 *uint256.Int) (int32, error) {
	if !sqrtPriceX96.Lt(fixedpoint.MaxSqrtRatio) {
		return fixedpoint.MaxTick, nil
	}
	return fixedpoint.GetTickAtSqrtRatio(sqrtPriceX96)
}

func decimal(x *uint256.Int) string {
	return x.ToBig().String()
}
