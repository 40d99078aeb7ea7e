package dex

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type fakeCaller struct {
	responses map[string][]byte
	calls     int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	key := fmt.Sprintf("%s:%x", msg.To.Hex(), msg.Data[:4])
	resp, ok := f.responses[key]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return resp, nil
}

func (f *fakeCaller) set(t *testing.T, to common.Address, source *lazyABI, method string, values ...interface{}) {
	t.Helper()
	parsed, err := source.get()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	m := parsed.Methods[method]
	packed, err := m.Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	f.responses[fmt.Sprintf("%s:%x", to.Hex(), m.ID)] = packed
}

func TestLiveReaderPoolMeta(t *testing.T) {
	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token0 := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token1 := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	caller := &fakeCaller{responses: make(map[string][]byte)}
	caller.set(t, pool, poolABI, "token0", token0)
	caller.set(t, pool, poolABI, "token1", token1)
	caller.set(t, pool, poolABI, "fee", big.NewInt(500))
	caller.set(t, pool, poolABI, "tickSpacing", big.NewInt(10))
	caller.set(t, pool, poolABI, "liquidity", big.NewInt(123))
	caller.set(t, pool, poolABI, "slot0", big.NewInt(1<<40), big.NewInt(-200), uint16(0), uint16(1), uint16(1), uint8(0), true)

	caller.set(t, token0, erc20ABI, "decimals", uint8(18))
	caller.set(t, token0, erc20ABI, "symbol", "WETH")
	caller.set(t, token0, erc20ABI, "name", "Wrapped Ether")

	var symbol [32]byte
	copy(symbol[:], "MKR")
	caller.set(t, token1, erc20ABI, "decimals", uint8(6))
	caller.set(t, token1, erc20Bytes32ABI, "symbol", symbol)

	reader := NewLiveReader(caller, nil, nil)
	ctx := context.Background()

	meta, err := reader.PoolMeta(ctx, pool)
	if err != nil {
		t.Fatalf("pool meta: %v", err)
	}
	if meta.Token0 != token0.Hex() || meta.Token1 != token1.Hex() || meta.Fee != 500 || meta.TickSpacing != 10 {
		t.Fatalf("pool meta mismatch: %+v", meta)
	}

	state, err := reader.PoolState(ctx, pool, 10)
	if err != nil {
		t.Fatalf("pool state: %v", err)
	}
	if state.Liquidity != "123" || state.Slot0 == nil || state.Slot0.Tick != -200 {
		t.Fatalf("pool state mismatch: %+v", state)
	}

	before := caller.calls
	weth, err := reader.TokenMeta(ctx, token0)
	if err != nil {
		t.Fatalf("token meta: %v", err)
	}
	if weth.Decimals != 18 || weth.Symbol != "WETH" || weth.Name != "Wrapped Ether" {
		t.Fatalf("token0 meta mismatch: %+v", weth)
	}
	if caller.calls != before {
		t.Fatalf("token meta should come from cache")
	}

	mkr, err := reader.TokenMeta(ctx, token1)
	if err != nil {
		t.Fatalf("token meta: %v", err)
	}
	if mkr.Decimals != 6 || mkr.Symbol != "MKR" || mkr.Name != "" {
		t.Fatalf("token1 meta mismatch: %+v", mkr)
	}
}

func TestLiveReaderBalanceOf(t *testing.T) {
	token := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	caller := &fakeCaller{responses: make(map[string][]byte)}
	caller.set(t, token, erc20ABI, "balanceOf", big.NewInt(42))

	reader := NewLiveReader(caller, NewTokenMetaCache(), nil)
	balance, err := reader.BalanceOf(context.Background(), token, common.HexToAddress("0x01"), 0)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Int64() != 42 {
		t.Fatalf("balance mismatch: %s", balance)
	}

	if _, err := reader.PoolState(context.Background(), token, 0); err == nil {
		t.Fatalf("expected error for unreadable pool state")
	}
}
