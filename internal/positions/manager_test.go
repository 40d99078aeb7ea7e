package positions

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rangeAMM/internal/dex"
	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/model"
	"rangeAMM/internal/notify"
	"rangeAMM/internal/pool"
	"rangeAMM/internal/registry"
	"rangeAMM/internal/storage"
	"rangeAMM/internal/token"
)

var (
	tokenA      = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB      = common.HexToAddress("0x000000000000000000000000000000000000000b")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol       = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
	trader      = common.HexToAddress("0x0000000000000000000000000000000000000777")
	ledgerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	startAmount = uint64(1_000_000_000)
)

type fixture struct {
	manager *Manager
	reg     *registry.Registry
	ledger  *token.Ledger
	sink    *storage.MemoryStorage
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ledger := token.NewLedger()
	for _, account := range []common.Address{alice, bob, trader} {
		for _, tok := range []common.Address{tokenA, tokenB} {
			if err := ledger.Mint(tok, account, uint256.NewInt(startAmount)); err != nil {
				t.Fatalf("fund: %v", err)
			}
		}
	}
	sink := storage.NewMemoryStorage()
	stream, err := notify.NewStream(1, []storage.Storage{sink})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	reg := registry.New(common.HexToAddress("0xd0"), ledger, stream, nil)
	return fixture{
		manager: New(ledgerAddr, reg, ledger, stream, nil),
		reg:     reg,
		ledger:  ledger,
		sink:    sink,
	}
}

func defaultMint(recipient common.Address) MintParams {
	return MintParams{
		Token0:         tokenA,
		Token1:         tokenB,
		TickLower:      -60,
		TickUpper:      60,
		Fee:            3000,
		SqrtPriceX96:   fixedpoint.Q96,
		Amount0Desired: uint256.NewInt(10_000),
		Amount1Desired: uint256.NewInt(10_000),
		Payer:          alice,
		Recipient:      recipient,
	}
}

func (f fixture) mint(t *testing.T, recipient common.Address) MintResult {
	t.Helper()
	result, err := f.manager.Mint(context.Background(), defaultMint(recipient))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return result
}

func (f fixture) pool(t *testing.T, address common.Address) *pool.Pool {
	t.Helper()
	p, err := f.reg.Lookup(address)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return p
}

func topics(t *testing.T, names ...string) []string {
	t.Helper()
	out := make([]string, 0, len(names))
	for _, name := range names {
		topic, err := dex.EventTopic(name)
		if err != nil {
			t.Fatalf("topic %s: %v", name, err)
		}
		out = append(out, topic)
	}
	return out
}

func TestMintIssuesHandle(t *testing.T) {
	f := newFixture(t)
	result := f.mint(t, bob)

	if result.ID != 1 {
		t.Fatalf("first id should be 1, got %d", result.ID)
	}
	if owner, _ := f.manager.OwnerOf(result.ID); owner != bob {
		t.Fatalf("owner %s, want bob", owner.Hex())
	}
	if f.manager.BalanceOf(bob) != 1 || f.manager.BalanceOf(alice) != 0 {
		t.Fatalf("unexpected balances")
	}
	if f.reg.PoolCount() != 1 {
		t.Fatalf("mint should have created the pool")
	}

	info, err := f.manager.Position(result.ID)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if info.Account != AccountOf(ledgerAddr, result.ID) {
		t.Fatalf("position held by %s", info.Account.Hex())
	}
	if !info.Liquidity.Eq(result.Liquidity) || info.TickLower != -60 || info.Fee != 3000 {
		t.Fatalf("unexpected position %+v", info)
	}
	pos := f.pool(t, result.Pool).GetPosition(info.Account)
	if !pos.Liquidity.Eq(result.Liquidity) {
		t.Fatalf("pool position liquidity %s, want %s", pos.Liquidity.ToBig(), result.Liquidity.ToBig())
	}

	paid := new(uint256.Int).Sub(uint256.NewInt(startAmount), f.ledger.BalanceOf(tokenA, alice))
	if !paid.Eq(result.Amount0) || result.Amount0.IsZero() {
		t.Fatalf("payer paid %s for amount0 %s", paid, result.Amount0)
	}

	want := topics(t, model.EventPoolCreated, model.EventInitialize, model.EventMint, model.EventTransfer, model.EventIncreaseLiquidity)
	logs := f.sink.Logs()
	if len(logs) != len(want) {
		t.Fatalf("expected %d notifications, got %d", len(want), len(logs))
	}
	for i, record := range logs {
		if record.Topic0() != want[i] {
			t.Fatalf("notification %d has topic %s, want %s", i, record.Topic0(), want[i])
		}
		if record.BlockNumber != 1 {
			t.Fatalf("mint should commit as one batch, got %d", record.BlockNumber)
		}
	}
}

func TestHandlesDoNotSharePositions(t *testing.T) {
	f := newFixture(t)
	first := f.mint(t, alice)
	second := f.mint(t, bob)

	if first.Pool != second.Pool {
		t.Fatalf("same parameters should reuse the pool")
	}
	if AccountOf(ledgerAddr, first.ID) == AccountOf(ledgerAddr, second.ID) {
		t.Fatalf("owner-of-record accounts collide")
	}
	if got := f.pool(t, first.Pool).State().Liquidity; !got.Eq(new(uint256.Int).Add(first.Liquidity, second.Liquidity)) {
		t.Fatalf("pool liquidity %s", got)
	}
}

func TestMintReversedTokensKeepsAmounts(t *testing.T) {
	f := newFixture(t)
	lower, err := fixedpoint.GetSqrtRatioAtTick(-60)
	if err != nil {
		t.Fatalf("sqrt ratio: %v", err)
	}
	// At the lower bound only token0 (tokenA) is needed.
	params := defaultMint(alice)
	params.SqrtPriceX96 = lower
	params.Token0, params.Token1 = tokenB, tokenA
	params.Amount0Desired = new(uint256.Int)
	params.Amount1Desired = uint256.NewInt(10_000)

	result, err := f.manager.Mint(context.Background(), params)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if result.Amount0.IsZero() || !result.Amount1.IsZero() {
		t.Fatalf("expected a token0-only deposit, got (%s, %s)", result.Amount0, result.Amount1)
	}
	if got := f.ledger.BalanceOf(tokenB, alice); got.Uint64() != startAmount {
		t.Fatalf("tokenB should not be charged, balance %s", got)
	}
}

func TestMintSlippageRevertsEverything(t *testing.T) {
	f := newFixture(t)
	params := defaultMint(alice)
	params.Amount0Min = uint256.NewInt(20_000)

	if _, err := f.manager.Mint(context.Background(), params); !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}
	if f.reg.PoolCount() != 0 {
		t.Fatalf("pool created by a failed mint survived")
	}
	if f.manager.BalanceOf(alice) != 0 || len(f.sink.Logs()) != 0 {
		t.Fatalf("failed mint left a trace")
	}
	if got := f.ledger.BalanceOf(tokenA, alice); got.Uint64() != startAmount {
		t.Fatalf("payer balance %s", got)
	}

	result := f.mint(t, alice)
	if result.ID != 1 {
		t.Fatalf("id of a reverted mint should be reused, got %d", result.ID)
	}
}

func TestMintErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	params := defaultMint(alice)
	params.SqrtPriceX96 = nil
	if _, err := f.manager.Mint(ctx, params); !errors.Is(err, pool.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	params = defaultMint(alice)
	params.Amount0Desired, params.Amount1Desired = nil, nil
	if _, err := f.manager.Mint(ctx, params); !errors.Is(err, ErrZeroLiquidity) {
		t.Fatalf("expected ErrZeroLiquidity, got %v", err)
	}
	params = defaultMint(common.Address{})
	if _, err := f.manager.Mint(ctx, params); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	params = defaultMint(alice)
	params.Payer = carol
	if _, err := f.manager.Mint(ctx, params); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if f.reg.PoolCount() != 0 {
		t.Fatalf("failed mints created a pool")
	}
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result := f.mint(t, alice)
	id := result.ID

	if _, err := f.manager.Burn(ctx, bob, id); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("stranger burn: expected ErrNotApproved, got %v", err)
	}
	if _, _, err := f.manager.Collect(ctx, bob, CollectParams{ID: id, Recipient: bob}); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("stranger collect: expected ErrNotApproved, got %v", err)
	}
	if err := f.manager.Approve(bob, bob, id); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("stranger approve: expected ErrNotApproved, got %v", err)
	}

	if err := f.manager.Approve(alice, bob, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved, _ := f.manager.GetApproved(id); approved != bob {
		t.Fatalf("approved %s", approved.Hex())
	}
	if _, _, err := f.manager.Collect(ctx, bob, CollectParams{ID: id, Recipient: bob}); err != nil {
		t.Fatalf("approved collect: %v", err)
	}

	if err := f.manager.SetApprovalForAll(alice, carol, true); err != nil {
		t.Fatalf("set approval for all: %v", err)
	}
	if !f.manager.IsApprovedForAll(alice, carol) {
		t.Fatalf("operator not recorded")
	}
	if _, err := f.manager.DecreaseLiquidity(ctx, carol, DecreaseParams{ID: id, Liquidity: uint256.NewInt(1)}); err != nil {
		t.Fatalf("operator decrease: %v", err)
	}
	if err := f.manager.SetApprovalForAll(alice, carol, false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := f.manager.DecreaseLiquidity(ctx, carol, DecreaseParams{ID: id, Liquidity: uint256.NewInt(1)}); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("revoked operator: expected ErrNotApproved, got %v", err)
	}

	if _, err := f.manager.OwnerOf(99); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if err := f.manager.Approve(alice, alice, id); !errors.Is(err, ErrApproveToOwner) {
		t.Fatalf("expected ErrApproveToOwner, got %v", err)
	}
}

func TestTransferMovesHandleNotPosition(t *testing.T) {
	f := newFixture(t)
	result := f.mint(t, alice)
	id := result.ID
	if err := f.manager.Approve(alice, carol, id); err != nil {
		t.Fatalf("approve: %v", err)
	}
	before := f.pool(t, result.Pool).GetPosition(AccountOf(ledgerAddr, id))

	if err := f.manager.TransferFrom(bob, alice, bob, id); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	if err := f.manager.TransferFrom(alice, bob, carol, id); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("wrong from: expected ErrNotApproved, got %v", err)
	}
	if err := f.manager.TransferFrom(alice, alice, common.Address{}, id); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if err := f.manager.TransferFrom(alice, alice, bob, id); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if owner, _ := f.manager.OwnerOf(id); owner != bob {
		t.Fatalf("owner %s, want bob", owner.Hex())
	}
	if f.manager.BalanceOf(alice) != 0 || f.manager.BalanceOf(bob) != 1 {
		t.Fatalf("balances not moved")
	}
	if approved, _ := f.manager.GetApproved(id); approved != (common.Address{}) {
		t.Fatalf("transfer should clear the approval")
	}
	after := f.pool(t, result.Pool).GetPosition(AccountOf(ledgerAddr, id))
	if !after.Liquidity.Eq(&before.Liquidity) {
		t.Fatalf("transfer touched the pool position")
	}
	if got := f.manager.Tokens(bob); len(got) != 1 || got[0] != id {
		t.Fatalf("bob holds %v", got)
	}
}

func TestLifecycleDecreaseCollectBurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result := f.mint(t, alice)
	id := result.ID
	p := f.pool(t, result.Pool)

	if _, err := p.Swap(ctx, trader, trader, true, big.NewInt(2_000), nil, p.PayFrom(trader), nil); err != nil {
		t.Fatalf("swap: %v", err)
	}

	half := new(uint256.Int).Rsh(result.Liquidity, 1)
	decreased, err := f.manager.DecreaseLiquidity(ctx, alice, DecreaseParams{ID: id, Liquidity: half})
	if err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if decreased.Amount0.IsZero() && decreased.Amount1.IsZero() {
		t.Fatalf("decrease should free tokens")
	}
	if _, err := f.manager.DecreaseLiquidity(ctx, alice, DecreaseParams{ID: id, Liquidity: uint256.NewInt(1), Amount0Min: fixedpoint.MaxUint128}); !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}

	burned, err := f.manager.Burn(ctx, alice, id)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if burned.Destroyed {
		t.Fatalf("handle with owed tokens must survive burn")
	}
	if err := f.manager.Destroy(alice, id); !errors.Is(err, ErrNotCleared) {
		t.Fatalf("expected ErrNotCleared, got %v", err)
	}

	info, _ := f.manager.Position(id)
	if !info.Liquidity.IsZero() || info.TokensOwed0.IsZero() {
		t.Fatalf("unexpected position after burn %+v", info)
	}
	owed0 := info.TokensOwed0.Clone()
	before := f.ledger.BalanceOf(tokenA, carol)
	amount0, _, err := f.manager.Collect(ctx, alice, CollectParams{ID: id, Recipient: carol})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !amount0.Eq(owed0) {
		t.Fatalf("collected %s, owed %s", amount0, owed0)
	}
	if got := new(uint256.Int).Sub(f.ledger.BalanceOf(tokenA, carol), before); !got.Eq(owed0) {
		t.Fatalf("recipient received %s", got)
	}

	burned, err = f.manager.Burn(ctx, alice, id)
	if err != nil {
		t.Fatalf("final burn: %v", err)
	}
	if !burned.Destroyed {
		t.Fatalf("cleared handle should be destroyed")
	}
	if _, err := f.manager.OwnerOf(id); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("destroyed handle still resolves: %v", err)
	}
	if f.manager.BalanceOf(alice) != 0 {
		t.Fatalf("balance not decremented")
	}
}

func TestCollectAccruesFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result := f.mint(t, alice)
	p := f.pool(t, result.Pool)

	if _, err := p.Swap(ctx, trader, trader, true, big.NewInt(5_000), nil, p.PayFrom(trader), nil); err != nil {
		t.Fatalf("swap: %v", err)
	}
	amount0, amount1, err := f.manager.Collect(ctx, alice, CollectParams{ID: result.ID, Recipient: alice})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if amount0.IsZero() || !amount1.IsZero() {
		t.Fatalf("expected token0 fees only, got (%s, %s)", amount0, amount1)
	}
	info, _ := f.manager.Position(result.ID)
	if !info.TokensOwed0.IsZero() || info.Liquidity.IsZero() {
		t.Fatalf("collect should leave liquidity and clear owed: %+v", info)
	}
}

func TestIncreaseLiquidity(t *testing.T) {
	f := newFixture(t)
	result := f.mint(t, alice)

	added, err := f.manager.IncreaseLiquidity(context.Background(), IncreaseParams{
		ID:             result.ID,
		Payer:          bob,
		Amount0Desired: uint256.NewInt(10_000),
		Amount1Desired: uint256.NewInt(10_000),
	})
	if err != nil {
		t.Fatalf("increase: %v", err)
	}
	if !added.Liquidity.Eq(result.Liquidity) {
		t.Fatalf("same amounts at the same price should add the same liquidity")
	}
	info, _ := f.manager.Position(result.ID)
	if !info.Liquidity.Eq(new(uint256.Int).Add(result.Liquidity, added.Liquidity)) {
		t.Fatalf("position liquidity %s", info.Liquidity.ToBig())
	}
	if _, err := f.manager.IncreaseLiquidity(context.Background(), IncreaseParams{ID: 42}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
