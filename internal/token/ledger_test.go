package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	tokenA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	alice  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestLedgerTransfer(t *testing.T) {
	l := NewLedger()
	if err := l.Mint(tokenA, alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(tokenA, alice, bob, uint256.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.BalanceOf(tokenA, alice).Uint64(); got != 60 {
		t.Fatalf("alice balance: %d", got)
	}
	if got := l.BalanceOf(tokenA, bob).Uint64(); got != 40 {
		t.Fatalf("bob balance: %d", got)
	}
	if got := l.TotalSupply(tokenA).Uint64(); got != 100 {
		t.Fatalf("supply: %d", got)
	}
}

func TestLedgerInsufficientBalance(t *testing.T) {
	l := NewLedger()
	err := l.Transfer(tokenA, alice, bob, uint256.NewInt(1))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestLedgerRevert(t *testing.T) {
	l := NewLedger()
	if err := l.Mint(tokenA, alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	id := l.Snapshot()
	if err := l.Transfer(tokenA, alice, bob, uint256.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := l.Mint(tokenA, bob, uint256.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	l.RevertToSnapshot(id)

	if got := l.BalanceOf(tokenA, alice).Uint64(); got != 100 {
		t.Fatalf("alice balance after revert: %d", got)
	}
	if got := l.BalanceOf(tokenA, bob).Uint64(); got != 0 {
		t.Fatalf("bob balance after revert: %d", got)
	}
	if got := l.TotalSupply(tokenA).Uint64(); got != 100 {
		t.Fatalf("supply after revert: %d", got)
	}
}
