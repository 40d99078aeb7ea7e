package registry

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/model"
	"rangeAMM/internal/notify"
	"rangeAMM/internal/storage"
	"rangeAMM/internal/token"
	"rangeAMM/internal/txn"
)

var (
	deployer = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	tokenA   = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB   = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

func newTestRegistry(t *testing.T) (*Registry, *storage.MemoryStorage) {
	t.Helper()
	sink := storage.NewMemoryStorage()
	stream, err := notify.NewStream(1, []storage.Storage{sink})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	return New(deployer, token.NewLedger(), stream, nil), sink
}

func TestSortTokens(t *testing.T) {
	token0, token1, err := SortTokens(tokenB, tokenA)
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	if token0 != tokenA || token1 != tokenB {
		t.Fatalf("unexpected order: %s %s", token0.Hex(), token1.Hex())
	}
	if _, _, err := SortTokens(tokenA, tokenA); !errors.Is(err, ErrIdenticalTokens) {
		t.Fatalf("expected ErrIdenticalTokens, got %v", err)
	}
	if _, _, err := SortTokens(tokenA, common.Address{}); !errors.Is(err, ErrZeroToken) {
		t.Fatalf("expected ErrZeroToken, got %v", err)
	}
}

func TestComputePoolAddressIsDeterministic(t *testing.T) {
	a, err := ComputePoolAddress(deployer, tokenA, tokenB, -60, 60, 3000)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	b, _ := ComputePoolAddress(deployer, tokenB, tokenA, -60, 60, 3000)
	if a != b {
		t.Fatalf("argument order changed identity")
	}
	for _, other := range []struct {
		lower, upper int32
		fee          uint32
	}{
		{-120, 60, 3000},
		{-60, 120, 3000},
		{-60, 60, 500},
	} {
		c, _ := ComputePoolAddress(deployer, tokenA, tokenB, other.lower, other.upper, other.fee)
		if c == a {
			t.Fatalf("parameters %+v collide with the base pool", other)
		}
	}
}

func TestCreatePoolIsIdempotent(t *testing.T) {
	r, sink := newTestRegistry(t)

	first, err := r.CreatePool(tokenA, tokenB, -60, 60, 3000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := r.CreatePool(tokenB, tokenA, -60, 60, 3000)
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if first != second {
		t.Fatalf("identical parameters produced two pools")
	}
	if r.PoolCount() != 1 {
		t.Fatalf("expected 1 pool, got %d", r.PoolCount())
	}
	expected, _ := ComputePoolAddress(deployer, tokenA, tokenB, -60, 60, 3000)
	if first != expected {
		t.Fatalf("pool address %s, computed %s", first.Hex(), expected.Hex())
	}
	if len(sink.Logs()) != 1 {
		t.Fatalf("expected one PoolCreated notification, got %d", len(sink.Logs()))
	}

	other, err := r.CreatePool(tokenA, tokenB, -120, 120, 3000)
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}
	pools, _ := r.Pools(tokenB, tokenA)
	if !reflect.DeepEqual(pools, []common.Address{first, other}) {
		t.Fatalf("pair listing mismatch: %v", pools)
	}
	if got, _ := r.GetPool(tokenA, tokenB, 1); got != other {
		t.Fatalf("index 1 should be the variant")
	}
	if !reflect.DeepEqual(r.AllPools(), []common.Address{first, other}) {
		t.Fatalf("all pools mismatch")
	}
}

func TestGetPoolEmptyPair(t *testing.T) {
	r, _ := newTestRegistry(t)

	address, err := r.GetPool(tokenA, tokenB, 0)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if address != (common.Address{}) {
		t.Fatalf("expected zero address, got %s", address.Hex())
	}
	if _, err := r.GetPool(tokenA, tokenA, 0); !errors.Is(err, ErrIdenticalTokens) {
		t.Fatalf("expected ErrIdenticalTokens, got %v", err)
	}
	if _, err := r.PoolAt(tokenA, tokenB, 0); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}
	if _, err := r.Lookup(tokenA); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}
}

func TestCreatePoolValidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	cases := []struct {
		lower, upper int32
		fee          uint32
		want         error
	}{
		{60, -60, 3000, ErrInvalidTickRange},
		{0, 0, 3000, ErrInvalidTickRange},
		{fixedpoint.MinTick - 1, 0, 3000, ErrInvalidTickRange},
		{-60, 60, 1_000_000, ErrInvalidFee},
	}
	for _, c := range cases {
		if _, err := r.CreatePool(tokenA, tokenB, c.lower, c.upper, c.fee); !errors.Is(err, c.want) {
			t.Fatalf("%+v: expected %v, got %v", c, c.want, err)
		}
	}
	if _, err := r.CreatePool(tokenA, tokenA, -60, 60, 3000); !errors.Is(err, ErrIdenticalTokens) {
		t.Fatalf("expected ErrIdenticalTokens, got %v", err)
	}
	if r.PoolCount() != 0 {
		t.Fatalf("invalid calls created pools")
	}
}

func TestRevertedCreationIsDropped(t *testing.T) {
	r, sink := newTestRegistry(t)
	boom := errors.New("boom")

	err := txn.Run(func() error {
		if _, err := r.CreatePool(tokenA, tokenB, -60, 60, 3000); err != nil {
			return err
		}
		return boom
	}, r)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if r.PoolCount() != 0 {
		t.Fatalf("reverted pool still registered")
	}
	if address, _ := r.GetPool(tokenA, tokenB, 0); address != (common.Address{}) {
		t.Fatalf("reverted pool still listed")
	}
	// the publisher is a separate participant and was not part of the outer snapshot
	if len(sink.Logs()) != 1 {
		t.Fatalf("expected the creation notification to have been delivered, got %d", len(sink.Logs()))
	}
}

func TestCreateAndInitializePoolIfNecessary(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	p, err := r.CreateAndInitializePoolIfNecessary(ctx, tokenA, tokenB, -60, 60, 3000, fixedpoint.Q96)
	if err != nil {
		t.Fatalf("create and initialize: %v", err)
	}
	if !p.Slot0().Initialized {
		t.Fatalf("pool not initialized")
	}
	again, err := r.CreateAndInitializePoolIfNecessary(ctx, tokenA, tokenB, -60, 60, 3000, fixedpoint.Q96)
	if err != nil || again != p {
		t.Fatalf("second call should return the same pool: %v", err)
	}

	outside, _ := fixedpoint.GetSqrtRatioAtTick(500)
	if _, err := r.CreateAndInitializePoolIfNecessary(ctx, tokenA, tokenB, -10, 10, 3000, outside); err == nil {
		t.Fatalf("expected initialization failure")
	}
	if r.PoolCount() != 1 {
		t.Fatalf("failed initialization left a pool behind")
	}

	records := r.Records(56)
	want := model.Pool{
		ChainID:      56,
		Address:      p.Address().Hex(),
		Token0:       tokenA.Hex(),
		Token1:       tokenB.Hex(),
		Fee:          3000,
		TickLower:    -60,
		TickUpper:    60,
		Index:        0,
		CreatedAtSeq: 1,
	}
	if len(records) != 1 || records[0] != want {
		t.Fatalf("records mismatch: %+v", records)
	}
}
