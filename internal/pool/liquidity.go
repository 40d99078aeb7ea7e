package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/model"
)

// amountsForLiquidity returns the token amounts backing delta at the current price.
// Positive deltas round up and negative deltas round down.
func (p *Pool) amountsForLiquidity(delta *big.Int) (*big.Int, *big.Int, error) {
	price := &p.slot.sqrtPriceX96
	amount0, amount1 := new(big.Int), new(big.Int)
	var err error
	switch {
	case !price.Gt(&p.sqrtLower):
		amount0, err = fixedpoint.GetAmount0DeltaSigned(&p.sqrtLower, &p.sqrtUpper, delta)
	case price.Lt(&p.sqrtUpper):
		if amount0, err = fixedpoint.GetAmount0DeltaSigned(price, &p.sqrtUpper, delta); err != nil {
			return nil, nil, err
		}
		amount1, err = fixedpoint.GetAmount1DeltaSigned(&p.sqrtLower, price, delta)
	default:
		amount1, err = fixedpoint.GetAmount1DeltaSigned(&p.sqrtLower, &p.sqrtUpper, delta)
	}
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// modifyPosition accrues owner's fees, applies delta to the position and the pool, and
// returns the signed token amounts the change is worth.
func (p *Pool) modifyPosition(owner common.Address, delta *big.Int) (*big.Int, *big.Int, error) {
	pos := p.position(owner)
	if delta.Sign() == 0 && pos.Liquidity.IsZero() {
		return nil, nil, ErrZeroLiquidity
	}
	if err := pos.accrue(&p.slot.feeGrowthGlobal0X128, &p.slot.feeGrowthGlobal1X128); err != nil {
		return nil, nil, err
	}
	if delta.Sign() == 0 {
		p.setPosition(owner, pos)
		return new(big.Int), new(big.Int), nil
	}

	liquidity, err := fixedpoint.AddDelta(&pos.Liquidity, delta)
	if err != nil {
		if delta.Sign() < 0 {
			return nil, nil, ErrInsufficientLiquidity
		}
		return nil, nil, err
	}
	total, err := fixedpoint.AddDelta(&p.slot.liquidity, delta)
	if err != nil {
		return nil, nil, err
	}
	amount0, amount1, err := p.amountsForLiquidity(delta)
	if err != nil {
		return nil, nil, err
	}

	pos.Liquidity = *liquidity
	p.setPosition(owner, pos)
	next := p.slot
	next.liquidity = *total
	p.setSlot(next)
	return amount0, amount1, nil
}

// Mint adds liquidity to recipient's position. The funder is asked for the required
// amounts after the position is updated; the pool then checks that its balances grew
// by at least those amounts.
func (p *Pool) Mint(ctx context.Context, sender, recipient common.Address, liquidity *uint256.Int, funder MintFunder, data []byte) (amount0, amount1 *uint256.Int, err error) {
	err = p.atomic(func() error {
		if !p.slot.initialized {
			return ErrNotInitialized
		}
		if liquidity.IsZero() {
			return ErrZeroLiquidity
		}
		if funder == nil {
			return ErrNilFunder
		}
		signed0, signed1, err := p.modifyPosition(recipient, liquidity.ToBig())
		if err != nil {
			return err
		}
		if amount0, err = fixedpoint.FromBig(signed0); err != nil {
			return err
		}
		if amount1, err = fixedpoint.FromBig(signed1); err != nil {
			return err
		}

		before0, before1 := p.Reserves()
		if err := funder.FundMint(ctx, amount0.Clone(), amount1.Clone(), data); err != nil {
			return fmt.Errorf("fund mint: %w", err)
		}
		if err := p.checkReceived(before0, before1, amount0, amount1); err != nil {
			return err
		}

		p.logger.Debug("pool mint",
			zap.String("owner", recipient.Hex()),
			zap.String("liquidity", decimal(liquidity)),
			zap.String("amount0", decimal(amount0)),
			zap.String("amount1", decimal(amount1)),
		)
		return p.publisher.Publish(p.cfg.Address, model.EventMint, model.MintEventData{
			Sender:    sender.Hex(),
			Owner:     recipient.Hex(),
			TickLower: p.cfg.TickLower,
			TickUpper: p.cfg.TickUpper,
			Amount:    decimal(liquidity),
			Amount0:   decimal(amount0),
			Amount1:   decimal(amount1),
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

func (p *Pool) checkReceived(before0, before1, amount0, amount1 *uint256.Int) error {
	after0, after1 := p.Reserves()
	for _, c := range []struct {
		before, after, want *uint256.Int
		token               common.Address
	}{
		{before0, after0, amount0, p.cfg.Token0},
		{before1, after1, amount1, p.cfg.Token1},
	} {
		if c.want.IsZero() {
			continue
		}
		required, overflow := new(uint256.Int).AddOverflow(c.before, c.want)
		if overflow || c.after.Lt(required) {
			return fmt.Errorf("%w: %s wants %s, received %s", ErrInsufficientTokensProvided,
				c.token.Hex(), decimal(c.want), new(big.Int).Sub(c.after.ToBig(), c.before.ToBig()))
		}
	}
	return nil
}

// Burn removes liquidity from owner's position and credits the tokens it was worth to
// the position's owed balances. No tokens move. A zero amount only accrues fees.
func (p *Pool) Burn(ctx context.Context, owner common.Address, liquidity *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	err = p.atomic(func() error {
		if !p.slot.initialized {
			return ErrNotInitialized
		}
		pos := p.position(owner)
		if liquidity.Gt(&pos.Liquidity) {
			return fmt.Errorf("%w: burn %s of %s", ErrInsufficientLiquidity, decimal(liquidity), decimal(&pos.Liquidity))
		}
		signed0, signed1, err := p.modifyPosition(owner, new(big.Int).Neg(liquidity.ToBig()))
		if err != nil {
			return err
		}
		if amount0, err = fixedpoint.FromBig(signed0.Neg(signed0)); err != nil {
			return err
		}
		if amount1, err = fixedpoint.FromBig(signed1.Neg(signed1)); err != nil {
			return err
		}

		if !amount0.IsZero() || !amount1.IsZero() {
			pos = p.position(owner)
			owed0, overflow0 := new(uint256.Int).AddOverflow(&pos.TokensOwed0, amount0)
			owed1, overflow1 := new(uint256.Int).AddOverflow(&pos.TokensOwed1, amount1)
			if overflow0 || overflow1 {
				return fixedpoint.ErrOverflow
			}
			pos.TokensOwed0 = *owed0
			pos.TokensOwed1 = *owed1
			p.setPosition(owner, pos)
		}

		p.logger.Debug("pool burn",
			zap.String("owner", owner.Hex()),
			zap.String("liquidity", decimal(liquidity)),
			zap.String("amount0", decimal(amount0)),
			zap.String("amount1", decimal(amount1)),
		)
		return p.publisher.Publish(p.cfg.Address, model.EventBurn, model.BurnEventData{
			Owner:     owner.Hex(),
			TickLower: p.cfg.TickLower,
			TickUpper: p.cfg.TickUpper,
			Amount:    decimal(liquidity),
			Amount0:   decimal(amount0),
			Amount1:   decimal(amount1),
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// Collect pays out up to the requested amounts of owner's owed balances to recipient.
func (p *Pool) Collect(ctx context.Context, owner, recipient common.Address, amount0Requested, amount1Requested *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	err = p.atomic(func() error {
		pos := p.position(owner)
		amount0 = minUint(amount0Requested, &pos.TokensOwed0)
		amount1 = minUint(amount1Requested, &pos.TokensOwed1)
		if amount0.IsZero() && amount1.IsZero() {
			return nil
		}

		pos.TokensOwed0.Sub(&pos.TokensOwed0, amount0)
		pos.TokensOwed1.Sub(&pos.TokensOwed1, amount1)
		p.setPosition(owner, pos)

		if !amount0.IsZero() {
			if err := p.vault.Transfer(p.cfg.Token0, p.cfg.Address, recipient, amount0); err != nil {
				return fmt.Errorf("collect token0: %w", err)
			}
		}
		if !amount1.IsZero() {
			if err := p.vault.Transfer(p.cfg.Token1, p.cfg.Address, recipient, amount1); err != nil {
				return fmt.Errorf("collect token1: %w", err)
			}
		}

		p.logger.Debug("pool collect",
			zap.String("owner", owner.Hex()),
			zap.String("recipient", recipient.Hex()),
			zap.String("amount0", decimal(amount0)),
			zap.String("amount1", decimal(amount1)),
		)
		return p.publisher.Publish(p.cfg.Address, model.EventCollect, model.CollectEventData{
			Owner:     owner.Hex(),
			Recipient: recipient.Hex(),
			TickLower: p.cfg.TickLower,
			TickUpper: p.cfg.TickUpper,
			Amount0:   decimal(amount0),
			Amount1:   decimal(amount1),
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

func minUint(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}
