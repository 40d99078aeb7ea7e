package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/txn"
)

// Vault holds token balances. The pool keeps its reserves under its own address and
// pays out through Transfer.
type Vault interface {
	txn.Revertible
	BalanceOf(token, account common.Address) *uint256.Int
	Transfer(token, from, to common.Address, amount *uint256.Int) error
}

// MintFunder is asked to deliver the amounts a mint requires to the pool. The pool
// checks its own balances afterwards.
type MintFunder interface {
	FundMint(ctx context.Context, amount0, amount1 *uint256.Int, data []byte) error
}

// SwapFunder is asked to deliver the positive side of a swap's deltas. The output has
// already been paid to the recipient when it is called.
type SwapFunder interface {
	FundSwap(ctx context.Context, amount0, amount1 *big.Int, data []byte) error
}

type MintFunderFunc func(ctx context.Context, amount0, amount1 *uint256.Int, data []byte) error

func (f MintFunderFunc) FundMint(ctx context.Context, amount0, amount1 *uint256.Int, data []byte) error {
	return f(ctx, amount0, amount1, data)
}

type SwapFunderFunc func(ctx context.Context, amount0, amount1 *big.Int, data []byte) error

func (f SwapFunderFunc) FundSwap(ctx context.Context, amount0, amount1 *big.Int, data []byte) error {
	return f(ctx, amount0, amount1, data)
}

// Payer funds mints and swaps straight from one account's vault balance.
type Payer struct {
	pool *Pool
	from common.Address
}

// PayFrom returns a funder that pays this pool from account.
func (p *Pool) PayFrom(account common.Address) Payer {
	return Payer{pool: p, from: account}
}

func (p Payer) FundMint(_ context.Context, amount0, amount1 *uint256.Int, _ []byte) error {
	return p.pay(amount0, amount1)
}

func (p Payer) FundSwap(_ context.Context, amount0, amount1 *big.Int, _ []byte) error {
	owed0, owed1 := new(uint256.Int), new(uint256.Int)
	if amount0.Sign() > 0 {
		v, err := fixedpoint.FromBig(amount0)
		if err != nil {
			return err
		}
		owed0 = v
	}
	if amount1.Sign() > 0 {
		v, err := fixedpoint.FromBig(amount1)
		if err != nil {
			return err
		}
		owed1 = v
	}
	return p.pay(owed0, owed1)
}

func (p Payer) pay(amount0, amount1 *uint256.Int) error {
	cfg := p.pool.cfg
	if !amount0.IsZero() {
		if err := p.pool.vault.Transfer(cfg.Token0, p.from, cfg.Address, amount0); err != nil {
			return fmt.Errorf("pay token0: %w", err)
		}
	}
	if !amount1.IsZero() {
		if err := p.pool.vault.Transfer(cfg.Token1, p.from, cfg.Address, amount1); err != nil {
			return fmt.Errorf("pay token1: %w", err)
		}
	}
	return nil
}
