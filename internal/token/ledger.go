package token

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rangeAMM/internal/txn"
)

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrZeroAccount         = errors.New("token: zero account")
)

type balanceKey struct {
	token   common.Address
	account common.Address
}

// Ledger is an in-memory multi-token balance book. Every mutation is journaled so a
// failed engine operation can roll transfers back.
type Ledger struct {
	journal  txn.Journal
	balances map[balanceKey]uint256.Int
	supply   map[common.Address]uint256.Int
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[balanceKey]uint256.Int),
		supply:   make(map[common.Address]uint256.Int),
	}
}

// BalanceOf returns a copy of the account's balance of token.
func (l *Ledger) BalanceOf(token, account common.Address) *uint256.Int {
	balance := l.balances[balanceKey{token: token, account: account}]
	return balance.Clone()
}

// TotalSupply returns the amount of token minted so far.
func (l *Ledger) TotalSupply(token common.Address) *uint256.Int {
	supply := l.supply[token]
	return supply.Clone()
}

// Mint credits amount of token to an account out of thin air.
func (l *Ledger) Mint(token, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAccount
	}
	key := balanceKey{token: token, account: to}
	balance := l.balances[key]
	next, overflow := new(uint256.Int).AddOverflow(&balance, amount)
	if overflow {
		return fmt.Errorf("mint %s: balance overflow", token.Hex())
	}
	supply := l.supply[token]
	nextSupply, overflow := new(uint256.Int).AddOverflow(&supply, amount)
	if overflow {
		return fmt.Errorf("mint %s: supply overflow", token.Hex())
	}
	l.setBalance(key, next)
	l.setSupply(token, nextSupply)
	return nil
}

// Transfer moves amount of token between two accounts.
func (l *Ledger) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAccount
	}
	if amount.IsZero() || from == to {
		return nil
	}
	fromKey := balanceKey{token: token, account: from}
	fromBalance := l.balances[fromKey]
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance.ToBig(), token.Hex(), amount.ToBig())
	}
	toKey := balanceKey{token: token, account: to}
	toBalance := l.balances[toKey]

	l.setBalance(fromKey, new(uint256.Int).Sub(&fromBalance, amount))
	l.setBalance(toKey, new(uint256.Int).Add(&toBalance, amount))
	return nil
}

func (l *Ledger) setBalance(key balanceKey, value *uint256.Int) {
	prev, existed := l.balances[key]
	l.journal.Append(func() {
		if existed {
			l.balances[key] = prev
		} else {
			delete(l.balances, key)
		}
	})
	l.balances[key] = *value
}

func (l *Ledger) setSupply(token common.Address, value *uint256.Int) {
	prev, existed := l.supply[token]
	l.journal.Append(func() {
		if existed {
			l.supply[token] = prev
		} else {
			delete(l.supply, token)
		}
	})
	l.supply[token] = *value
}

func (l *Ledger) Snapshot() int           { return l.journal.Snapshot() }
func (l *Ledger) RevertToSnapshot(id int) { l.journal.RevertToSnapshot(id) }
func (l *Ledger) DiscardSnapshot(id int)  { l.journal.DiscardSnapshot(id) }
