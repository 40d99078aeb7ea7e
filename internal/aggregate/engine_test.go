package aggregate

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rangeAMM/internal/dex"
	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/notify"
	"rangeAMM/internal/registry"
	"rangeAMM/internal/storage"
	"rangeAMM/internal/token"
)

func TestJournalReservesMatchEngine(t *testing.T) {
	ctx := context.Background()
	tokenA := common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB := common.HexToAddress("0x000000000000000000000000000000000000000b")
	lp := common.HexToAddress("0x0000000000000000000000000000000000000101")
	trader := common.HexToAddress("0x0000000000000000000000000000000000000202")

	ledger := token.NewLedger()
	for _, account := range []common.Address{lp, trader} {
		for _, tok := range []common.Address{tokenA, tokenB} {
			if err := ledger.Mint(tok, account, uint256.NewInt(1_000_000_000)); err != nil {
				t.Fatalf("fund: %v", err)
			}
		}
	}

	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		now = now.Add(45 * time.Second)
		return now
	}
	sink := storage.NewMemoryStorage()
	stream, err := notify.NewStream(1, []storage.Storage{sink}, notify.WithClock(clock))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	reg := registry.New(common.HexToAddress("0xd0"), ledger, stream, nil)
	p, err := reg.CreateAndInitializePoolIfNecessary(ctx, tokenA, tokenB, -600, 600, 3000, fixedpoint.Q96)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if _, _, err := p.Mint(ctx, lp, lp, uint256.NewInt(5_000_000), p.PayFrom(lp), nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	swaps := []struct {
		zeroForOne bool
		amount     int64
	}{
		{true, 20_000}, {false, 35_000}, {true, -5_000}, {false, 1_000},
	}
	for _, s := range swaps {
		if _, err := p.Swap(ctx, trader, trader, s.zeroForOne, big.NewInt(s.amount), nil, p.PayFrom(trader), nil); err != nil {
			t.Fatalf("swap: %v", err)
		}
	}
	if _, _, err := p.Burn(ctx, lp, uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if _, _, err := p.Collect(ctx, lp, lp, fixedpoint.MaxUint128, fixedpoint.MaxUint128); err != nil {
		t.Fatalf("collect: %v", err)
	}

	decoder, err := dex.NewEventDecoder(dex.DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	decodeCtx := dex.DecodeContext{Context: ctx, PoolMetaCache: dex.NewPoolMetaCache()}
	var out []byte
	for _, record := range sink.Logs() {
		event, err := decoder.Decode(record, decodeCtx)
		if err != nil {
			t.Fatalf("decode seq %d: %v", record.BlockNumber, err)
		}
		line, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		out = append(append(out, line...), '\n')
	}
	path := filepath.Join(t.TempDir(), "typed.jsonl")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	metrics := &memorySink{}
	agg := NewAggregator(Config{WindowSeconds: 60}, metrics, nil, nil)
	if _, err := agg.Run(ctx, path); err != nil {
		t.Fatalf("run: %v", err)
	}

	reserve0, reserve1, tracked := agg.Reserves(p.Address().Hex())
	want0, want1 := p.Reserves()
	if !tracked || reserve0.Cmp(want0.ToBig()) != 0 || reserve1.Cmp(want1.ToBig()) != 0 {
		t.Fatalf("reserves mismatch: got (%s, %s) want (%s, %s)", reserve0, reserve1, want0, want1)
	}

	var swapCount uint64
	for _, m := range metrics.metrics {
		swapCount += m.SwapCount
	}
	if swapCount != uint64(len(swaps)) {
		t.Fatalf("swap count mismatch: %d", swapCount)
	}
	if len(metrics.pools) != 1 || metrics.pools[0].Address != p.Address().Hex() {
		t.Fatalf("pool record mismatch: %+v", metrics.pools)
	}
}
