package pool

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/model"
	"rangeAMM/internal/notify"
	"rangeAMM/internal/storage"
	"rangeAMM/internal/token"
)

var (
	token0      = common.HexToAddress("0x000000000000000000000000000000000000000a")
	token1      = common.HexToAddress("0x000000000000000000000000000000000000000b")
	poolAddress = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	lp          = common.HexToAddress("0x0000000000000000000000000000000000000101")
	trader      = common.HexToAddress("0x0000000000000000000000000000000000000202")
)

type fixture struct {
	pool   *Pool
	ledger *token.Ledger
	sink   *storage.MemoryStorage
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ledger := token.NewLedger()
	funds := uint256.NewInt(1_000_000_000_000)
	for _, account := range []common.Address{lp, trader} {
		for _, tok := range []common.Address{token0, token1} {
			if err := ledger.Mint(tok, account, funds); err != nil {
				t.Fatalf("fund: %v", err)
			}
		}
	}
	sink := storage.NewMemoryStorage()
	stream, err := notify.NewStream(1, []storage.Storage{sink})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	p, err := New(Config{
		Address:   poolAddress,
		Token0:    token0,
		Token1:    token1,
		TickLower: -60,
		TickUpper: 60,
		Fee:       3000,
	}, ledger, stream, nil)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return fixture{pool: p, ledger: ledger, sink: sink}
}

// newActiveFixture returns a pool initialized at price 1 holding liquidity 1_000_000 for lp.
func newActiveFixture(t *testing.T) fixture {
	t.Helper()
	f := newFixture(t)
	ctx := context.Background()
	if err := f.pool.Initialize(ctx, fixedpoint.Q96); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, _, err := f.pool.Mint(ctx, lp, lp, uint256.NewInt(1_000_000), f.pool.PayFrom(lp), nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return f
}

func TestConfigValidate(t *testing.T) {
	valid := Config{Token0: token0, Token1: token1, TickLower: -60, TickUpper: 60, Fee: 3000}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cases := []Config{
		{Token0: token1, Token1: token0, TickLower: -60, TickUpper: 60},
		{Token0: token0, Token1: token1, TickLower: 60, TickUpper: 60},
		{Token0: token0, Token1: token1, TickLower: fixedpoint.MinTick - 1, TickUpper: 0},
		{Token0: token0, Token1: token1, TickLower: -60, TickUpper: 60, Fee: 1_000_000},
	}
	for i, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.pool.Quote(true, big.NewInt(1), nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	outside, _ := fixedpoint.GetSqrtRatioAtTick(61)
	if err := f.pool.Initialize(ctx, outside); !errors.Is(err, ErrPriceOutOfRange) {
		t.Fatalf("expected ErrPriceOutOfRange, got %v", err)
	}
	if err := f.pool.Initialize(ctx, fixedpoint.Q96); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := f.pool.Initialize(ctx, fixedpoint.Q96); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}

	slot0 := f.pool.Slot0()
	if !slot0.Initialized || slot0.Tick != 0 || !slot0.SqrtPriceX96.Eq(fixedpoint.Q96) {
		t.Fatalf("unexpected slot0: %+v", slot0)
	}
	logs := f.sink.Logs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(logs))
	}
}

func TestMintRequiresBothTokensInRange(t *testing.T) {
	f := newActiveFixture(t)

	reserve0, reserve1 := f.pool.Reserves()
	if reserve0.IsZero() || reserve1.IsZero() {
		t.Fatalf("in-range mint should take both tokens: %s %s", reserve0, reserve1)
	}
	pos := f.pool.GetPosition(lp)
	if pos.Liquidity.Uint64() != 1_000_000 {
		t.Fatalf("position liquidity mismatch: %s", &pos.Liquidity)
	}
	if state := f.pool.State(); state.Liquidity.Uint64() != 1_000_000 {
		t.Fatalf("pool liquidity mismatch: %s", state.Liquidity)
	}
	if balance := f.ledger.BalanceOf(token0, lp); new(uint256.Int).Add(balance, reserve0).Uint64() != 1_000_000_000_000 {
		t.Fatalf("lp was not charged exactly the reserve")
	}
}

func TestSwapExactInputScenario(t *testing.T) {
	f := newActiveFixture(t)
	ctx := context.Background()
	before := f.pool.Slot0()

	result, err := f.pool.Swap(ctx, trader, trader, true, big.NewInt(1000), nil, f.pool.PayFrom(trader), nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if result.Amount0.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("amount0 should be +1000, got %s", result.Amount0)
	}
	if result.Amount1.Sign() >= 0 {
		t.Fatalf("amount1 should be negative, got %s", result.Amount1)
	}
	if new(big.Int).Mul(result.Amount0, result.Amount1).Sign() > 0 {
		t.Fatalf("both tokens flowed the same way")
	}
	after := f.pool.Slot0()
	if !after.SqrtPriceX96.Lt(before.SqrtPriceX96) {
		t.Fatalf("price should fall: %s -> %s", before.SqrtPriceX96, after.SqrtPriceX96)
	}
	if after.Tick > before.Tick {
		t.Fatalf("tick should not rise: %d -> %d", before.Tick, after.Tick)
	}
	if result.FeeAmount.Uint64() != 3 {
		t.Fatalf("fee should be 3, got %s", result.FeeAmount)
	}
	received := new(big.Int).Sub(f.ledger.BalanceOf(token1, trader).ToBig(), big.NewInt(1_000_000_000_000))
	if received.Cmp(new(big.Int).Neg(result.Amount1)) != 0 {
		t.Fatalf("trader received %s, swap reported %s", received, result.Amount1)
	}
}

func TestSwapExactOutput(t *testing.T) {
	f := newActiveFixture(t)

	result, err := f.pool.Swap(context.Background(), trader, trader, false, big.NewInt(-500), nil, f.pool.PayFrom(trader), nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if result.Amount0.Cmp(big.NewInt(-500)) != 0 {
		t.Fatalf("amount0 should be -500, got %s", result.Amount0)
	}
	if result.Amount1.Cmp(big.NewInt(500)) <= 0 {
		t.Fatalf("input should exceed output plus fee, got %s", result.Amount1)
	}
	if !f.pool.Slot0().SqrtPriceX96.Gt(fixedpoint.Q96) {
		t.Fatalf("price should rise")
	}
}

func TestSwapPartialFillAtRangeBound(t *testing.T) {
	f := newActiveFixture(t)
	ctx := context.Background()

	result, err := f.pool.Swap(ctx, trader, trader, true, big.NewInt(1_000_000), nil, f.pool.PayFrom(trader), nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	lower, _ := f.pool.PriceBounds()
	slot0 := f.pool.Slot0()
	if !slot0.SqrtPriceX96.Eq(lower) || slot0.Tick != -60 {
		t.Fatalf("price should stop at the lower bound: %+v", slot0)
	}
	if result.Amount0.Cmp(big.NewInt(1_000_000)) >= 0 {
		t.Fatalf("fill should be partial, got %s", result.Amount0)
	}
	_, reserve1 := f.pool.Reserves()
	if reserve1.Uint64() > 1 {
		t.Fatalf("token1 should be drained to rounding dust, left %s", reserve1)
	}

	again, err := f.pool.Swap(ctx, trader, trader, true, big.NewInt(10), nil, f.pool.PayFrom(trader), nil)
	if err != nil {
		t.Fatalf("swap at bound: %v", err)
	}
	if again.Filled() {
		t.Fatalf("swap at bound should be a zero fill: %+v", again)
	}
}

func TestSwapPriceLimit(t *testing.T) {
	f := newActiveFixture(t)
	ctx := context.Background()

	if _, err := f.pool.Quote(true, big.NewInt(10), fixedpoint.Q96); !errors.Is(err, ErrInvalidPriceLimit) {
		t.Fatalf("expected ErrInvalidPriceLimit, got %v", err)
	}
	limit, _ := fixedpoint.GetSqrtRatioAtTick(-10)
	result, err := f.pool.Swap(ctx, trader, trader, true, big.NewInt(1_000_000), limit, f.pool.PayFrom(trader), nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !f.pool.Slot0().SqrtPriceX96.Eq(limit) {
		t.Fatalf("price should stop at the limit")
	}
	if !result.Filled() {
		t.Fatalf("expected a partial fill")
	}
}

func TestSwapErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.pool.Initialize(ctx, fixedpoint.Q96); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := f.pool.Swap(ctx, trader, trader, true, big.NewInt(1), nil, f.pool.PayFrom(trader), nil); !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("expected ErrNoLiquidity, got %v", err)
	}
	if _, err := f.pool.Quote(true, new(big.Int), nil); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
}

func TestQuoteMatchesSwapAndLeavesStateUnchanged(t *testing.T) {
	f := newActiveFixture(t)
	stateBefore := f.pool.State()
	positionBefore := f.pool.GetPosition(lp)
	logsBefore := len(f.sink.Logs())

	quote, err := f.pool.Quote(false, big.NewInt(2500), nil)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !reflect.DeepEqual(f.pool.State(), stateBefore) {
		t.Fatalf("quote changed pool state")
	}
	if !reflect.DeepEqual(f.pool.GetPosition(lp), positionBefore) {
		t.Fatalf("quote changed position")
	}
	if len(f.sink.Logs()) != logsBefore {
		t.Fatalf("quote emitted notifications")
	}

	result, err := f.pool.Swap(context.Background(), trader, trader, false, big.NewInt(2500), nil, f.pool.PayFrom(trader), nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !reflect.DeepEqual(quote, result) {
		t.Fatalf("quote %+v differs from swap %+v", quote, result)
	}
}

func TestMintThenBurnRestoresLiquidity(t *testing.T) {
	f := newActiveFixture(t)
	ctx := context.Background()
	other := trader
	liquidityBefore := f.pool.State().Liquidity

	minted0, minted1, err := f.pool.Mint(ctx, other, other, uint256.NewInt(250_000), f.pool.PayFrom(other), nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	burned0, burned1, err := f.pool.Burn(ctx, other, uint256.NewInt(250_000))
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if !f.pool.State().Liquidity.Eq(liquidityBefore) {
		t.Fatalf("liquidity not restored")
	}
	if burned0.Gt(minted0) || burned1.Gt(minted1) {
		t.Fatalf("burn returned more than mint took: %s/%s vs %s/%s", burned0, burned1, minted0, minted1)
	}
	if new(uint256.Int).Sub(minted0, burned0).Uint64() > 1 || new(uint256.Int).Sub(minted1, burned1).Uint64() > 1 {
		t.Fatalf("rounding gap larger than one unit")
	}
	pos := f.pool.GetPosition(other)
	if !pos.TokensOwed0.Eq(burned0) || !pos.TokensOwed1.Eq(burned1) {
		t.Fatalf("owed balances should equal burned amounts: %+v", pos)
	}
}

func TestBurnErrors(t *testing.T) {
	f := newActiveFixture(t)
	ctx := context.Background()
	if _, _, err := f.pool.Burn(ctx, lp, uint256.NewInt(1_000_001)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if _, _, err := f.pool.Burn(ctx, trader, new(uint256.Int)); !errors.Is(err, ErrZeroLiquidity) {
		t.Fatalf("expected ErrZeroLiquidity for empty poke, got %v", err)
	}
	if _, _, err := f.pool.Mint(ctx, lp, lp, new(uint256.Int), f.pool.PayFrom(lp), nil); !errors.Is(err, ErrZeroLiquidity) {
		t.Fatalf("expected ErrZeroLiquidity, got %v", err)
	}
}

func TestCollectIsCapped(t *testing.T) {
	f := newActiveFixture(t)
	ctx := context.Background()
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000303")

	burned0, burned1, err := f.pool.Burn(ctx, lp, uint256.NewInt(400_000))
	if err != nil {
		t.Fatalf("burn: %v", err)
	}

	half := new(uint256.Int).Rsh(burned0, 1)
	got0, got1, err := f.pool.Collect(ctx, lp, recipient, half, new(uint256.Int))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !got0.Eq(half) || !got1.IsZero() {
		t.Fatalf("partial collect mismatch: %s %s", got0, got1)
	}

	huge := new(uint256.Int).Set(fixedpoint.MaxUint128)
	got0, got1, err = f.pool.Collect(ctx, lp, recipient, huge, huge)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !got0.Eq(new(uint256.Int).Sub(burned0, half)) || !got1.Eq(burned1) {
		t.Fatalf("capped collect mismatch: %s %s", got0, got1)
	}
	pos := f.pool.GetPosition(lp)
	if !pos.TokensOwed0.IsZero() || !pos.TokensOwed1.IsZero() {
		t.Fatalf("owed balances should be drained: %+v", pos)
	}
	if !f.ledger.BalanceOf(token0, recipient).Eq(burned0) || !f.ledger.BalanceOf(token1, recipient).Eq(burned1) {
		t.Fatalf("recipient balances mismatch")
	}

	got0, got1, err = f.pool.Collect(ctx, lp, recipient, huge, huge)
	if err != nil || !got0.IsZero() || !got1.IsZero() {
		t.Fatalf("empty collect should pay nothing: %s %s %v", got0, got1, err)
	}
}

func TestFeeGrowthMonotonicAndAccrues(t *testing.T) {
	f := newActiveFixture(t)
	ctx := context.Background()

	prev := f.pool.State()
	var fees0 uint64
	for i, zeroForOne := range []bool{true, false, true, false, false, true} {
		result, err := f.pool.Swap(ctx, trader, trader, zeroForOne, big.NewInt(700), nil, f.pool.PayFrom(trader), nil)
		if err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
		if zeroForOne {
			fees0 += result.FeeAmount.Uint64()
		}
		state := f.pool.State()
		if state.FeeGrowthGlobal0X128.Lt(prev.FeeGrowthGlobal0X128) || state.FeeGrowthGlobal1X128.Lt(prev.FeeGrowthGlobal1X128) {
			t.Fatalf("fee growth decreased at swap %d", i)
		}
		prev = state
	}

	if _, _, err := f.pool.Burn(ctx, lp, new(uint256.Int)); err != nil {
		t.Fatalf("poke: %v", err)
	}
	pos := f.pool.GetPosition(lp)
	owed0 := pos.TokensOwed0.Uint64()
	if owed0 > fees0 || owed0+3 < fees0 {
		t.Fatalf("sole lp should earn the token0 fees: owed %d, fees %d", owed0, fees0)
	}
}

func TestUnderpayingFunderRevertsEverything(t *testing.T) {
	f := newActiveFixture(t)
	ctx := context.Background()

	stateBefore := f.pool.State()
	positionBefore := f.pool.GetPosition(trader)
	traderBefore := f.ledger.BalanceOf(token1, trader)
	logsBefore := len(f.sink.Logs())

	stingy := SwapFunderFunc(func(context.Context, *big.Int, *big.Int, []byte) error { return nil })
	if _, err := f.pool.Swap(ctx, trader, trader, true, big.NewInt(1000), nil, stingy, nil); !errors.Is(err, ErrInsufficientTokensProvided) {
		t.Fatalf("expected ErrInsufficientTokensProvided, got %v", err)
	}
	nothing := MintFunderFunc(func(context.Context, *uint256.Int, *uint256.Int, []byte) error { return nil })
	if _, _, err := f.pool.Mint(ctx, trader, trader, uint256.NewInt(10), nothing, nil); !errors.Is(err, ErrInsufficientTokensProvided) {
		t.Fatalf("expected ErrInsufficientTokensProvided, got %v", err)
	}

	if !reflect.DeepEqual(f.pool.State(), stateBefore) {
		t.Fatalf("pool state changed after failed calls")
	}
	if !reflect.DeepEqual(f.pool.GetPosition(trader), positionBefore) {
		t.Fatalf("position changed after failed mint")
	}
	if !f.ledger.BalanceOf(token1, trader).Eq(traderBefore) {
		t.Fatalf("swap output was not clawed back")
	}
	if len(f.sink.Logs()) != logsBefore {
		t.Fatalf("failed calls emitted notifications")
	}
}

func TestReentrantFunderIsLocked(t *testing.T) {
	f := newActiveFixture(t)
	ctx := context.Background()

	reenter := SwapFunderFunc(func(ctx context.Context, amount0, amount1 *big.Int, data []byte) error {
		_, err := f.pool.Swap(ctx, trader, trader, true, big.NewInt(10), nil, f.pool.PayFrom(trader), nil)
		return err
	})
	if _, err := f.pool.Swap(ctx, trader, trader, true, big.NewInt(1000), nil, reenter, nil); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if _, err := f.pool.Swap(ctx, trader, trader, true, big.NewInt(1000), nil, f.pool.PayFrom(trader), nil); err != nil {
		t.Fatalf("pool should unlock after failure: %v", err)
	}
}

func TestNotificationsRecordMintAndSwap(t *testing.T) {
	f := newActiveFixture(t)
	if _, err := f.pool.Swap(context.Background(), trader, lp, true, big.NewInt(1000), nil, f.pool.PayFrom(trader), nil); err != nil {
		t.Fatalf("swap: %v", err)
	}
	logs := f.sink.Logs()
	if len(logs) != 3 {
		t.Fatalf("expected initialize, mint and swap notifications, got %d", len(logs))
	}
	wantOrder := []string{model.EventInitialize, model.EventMint, model.EventSwap}
	for i, record := range logs {
		if record.Address != poolAddress.Hex() {
			t.Fatalf("notification %d from %s", i, record.Address)
		}
		if record.BlockNumber != uint64(i+1) {
			t.Fatalf("%s should be batch %d, got %d", wantOrder[i], i+1, record.BlockNumber)
		}
	}
}
