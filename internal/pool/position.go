package pool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rangeAMM/internal/fixedpoint"
)

// Position is one owner's share of the pool's range.
type Position struct {
	Liquidity                uint256.Int
	FeeGrowthInside0LastX128 uint256.Int
	FeeGrowthInside1LastX128 uint256.Int
	TokensOwed0              uint256.Int
	TokensOwed1              uint256.Int
}

// IsEmpty reports whether the position holds neither liquidity nor owed tokens.
func (p Position) IsEmpty() bool {
	return p.Liquidity.IsZero() && p.TokensOwed0.IsZero() && p.TokensOwed1.IsZero()
}

// accrue credits the fees earned since the last snapshot and moves the snapshot to the
// given accumulators. The range is the whole pool, so fee growth inside is the global value.
func (p *Position) accrue(feeGrowth0, feeGrowth1 *uint256.Int) error {
	earned0, err := earned(feeGrowth0, &p.FeeGrowthInside0LastX128, &p.Liquidity)
	if err != nil {
		return err
	}
	earned1, err := earned(feeGrowth1, &p.FeeGrowthInside1LastX128, &p.Liquidity)
	if err != nil {
		return err
	}
	owed0, overflow := new(uint256.Int).AddOverflow(&p.TokensOwed0, earned0)
	if overflow {
		return fixedpoint.ErrOverflow
	}
	owed1, overflow := new(uint256.Int).AddOverflow(&p.TokensOwed1, earned1)
	if overflow {
		return fixedpoint.ErrOverflow
	}
	p.TokensOwed0 = *owed0
	p.TokensOwed1 = *owed1
	p.FeeGrowthInside0LastX128 = *feeGrowth0
	p.FeeGrowthInside1LastX128 = *feeGrowth1
	return nil
}

func earned(current, last, liquidity *uint256.Int) (*uint256.Int, error) {
	if liquidity.IsZero() || !current.Gt(last) {
		return new(uint256.Int), nil
	}
	growth := new(uint256.Int).Sub(current, last)
	return fixedpoint.MulDiv(growth, liquidity, fixedpoint.Q128)
}

func (p *Pool) position(owner common.Address) Position {
	if pos, ok := p.positions[owner]; ok {
		return *pos
	}
	return Position{}
}

func (p *Pool) setPosition(owner common.Address, next Position) {
	prev, existed := p.positions[owner]
	var saved Position
	if existed {
		saved = *prev
	}
	p.journal.Append(func() {
		if existed {
			*p.positions[owner] = saved
		} else {
			delete(p.positions, owner)
		}
	})
	if existed {
		*prev = next
		return
	}
	stored := next
	p.positions[owner] = &stored
}
