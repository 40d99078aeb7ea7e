// Package replay backtests a single-range engine pool against the swap history of a
// live V3 pool: the engine pool is forked from the live pool's tokens, fee and price and
// every historical swap is replayed against it as an exact-input trade.
package replay

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

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
	RegistryAddress = common.HexToAddress("0x0000000000000000000000000000000000001000")
	LPAccount       = common.HexToAddress("0x0000000000000000000000000000000000002000")
	TraderAccount   = common.HexToAddress("0x0000000000000000000000000000000000003000")
)

// Config describes the engine pool to fork.
type Config struct {
	Pool      common.Address
	ForkBlock uint64
	TickLower int32
	TickUpper int32
	Liquidity *uint256.Int
}

// Report summarizes a replay. Volumes are the inputs the engine pool actually absorbed.
type Report struct {
	Pool         common.Address
	Swaps        int
	Replayed     int
	PartialFills int
	Skipped      int
	Volume0      *uint256.Int
	Volume1      *uint256.Int
	Fees0        *uint256.Int
	Fees1        *uint256.Int
	SqrtPriceX96 *uint256.Int
	Tick         int32
	LiveTick     int32
	// Live pool token balances at the fork block, nil when they could not be read.
	LiveReserve0 *big.Int
	LiveReserve1 *big.Int
}

type Replayer struct {
	cfg     Config
	decoder *dex.EventDecoder
	metas   *dex.PoolMetaCache
	logger  *zap.Logger

	ledger   *token.Ledger
	registry *registry.Registry
	pool     *pool.Pool
	report   Report
}

// Fork reads the live pool at cfg.ForkBlock and builds an engine pool over the same tokens
// and fee. The starting price is the live price clamped into [TickLower, TickUpper]. The LP
// account then mints cfg.Liquidity. Engine notifications go to sinks.
func Fork(ctx context.Context, source Source, cfg Config, sinks []storage.Storage, logger *zap.Logger) (*Replayer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Liquidity == nil || cfg.Liquidity.IsZero() {
		return nil, fmt.Errorf("liquidity must be greater than zero")
	}
	chainID, err := source.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	live := dex.NewLiveReader(source, nil, logger)
	meta, err := live.PoolMeta(ctx, cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("pool metadata: %w", err)
	}
	state, err := live.PoolState(ctx, cfg.Pool, cfg.ForkBlock)
	if err != nil {
		return nil, fmt.Errorf("pool state: %w", err)
	}
	if state.Slot0 == nil {
		return nil, fmt.Errorf("pool %s has no slot0 at block %d", cfg.Pool.Hex(), cfg.ForkBlock)
	}
	meta.Slot0 = state.Slot0
	meta.Liquidity = state.Liquidity
	metas := dex.NewPoolMetaCache()
	metas.Set(cfg.Pool, meta)

	livePrice, err := uint256.FromDecimal(state.Slot0.SqrtPriceX96)
	if err != nil {
		return nil, fmt.Errorf("live sqrt price %q: %w", state.Slot0.SqrtPriceX96, err)
	}
	lower, err := fixedpoint.GetSqrtRatioAtTick(cfg.TickLower)
	if err != nil {
		return nil, err
	}
	upper, err := fixedpoint.GetSqrtRatioAtTick(cfg.TickUpper)
	if err != nil {
		return nil, err
	}
	price := clamp(livePrice, lower, upper)

	stream, err := notify.NewStream(chainID.Uint64(), sinks, notify.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	ledger := token.NewLedger()
	reg := registry.New(RegistryAddress, ledger, stream, logger)
	token0, token1 := common.HexToAddress(meta.Token0), common.HexToAddress(meta.Token1)
	p, err := reg.CreateAndInitializePoolIfNecessary(ctx, token0, token1, cfg.TickLower, cfg.TickUpper, meta.Fee, price)
	if err != nil {
		return nil, fmt.Errorf("create engine pool: %w", err)
	}

	for _, account := range []common.Address{LPAccount, TraderAccount} {
		for _, tok := range []common.Address{token0, token1} {
			if err := ledger.Mint(tok, account, fixedpoint.MaxUint128); err != nil {
				return nil, err
			}
		}
	}
	if _, _, err := p.Mint(ctx, LPAccount, LPAccount, cfg.Liquidity, p.PayFrom(LPAccount), nil); err != nil {
		return nil, fmt.Errorf("mint lp liquidity: %w", err)
	}

	liveReserves := make([]*big.Int, 2)
	for i, tok := range []common.Address{token0, token1} {
		balance, err := live.BalanceOf(ctx, tok, cfg.Pool, cfg.ForkBlock)
		if err != nil {
			logger.Warn("read live reserve", zap.String("token", tok.Hex()), zap.Error(err))
			continue
		}
		liveReserves[i] = balance
	}

	decoder, err := dex.NewEventDecoder(dex.DecoderConfig{})
	if err != nil {
		return nil, err
	}
	logger.Info("forked pool",
		zap.String("live_pool", cfg.Pool.Hex()),
		zap.String("engine_pool", p.Address().Hex()),
		zap.Uint32("fee", meta.Fee),
		zap.String("live_sqrt_price_x96", livePrice.ToBig().String()),
		zap.String("start_sqrt_price_x96", price.ToBig().String()),
	)
	return &Replayer{
		cfg:      cfg,
		decoder:  decoder,
		metas:    metas,
		logger:   logger,
		ledger:   ledger,
		registry: reg,
		pool:     p,
		report: Report{
			Pool:         p.Address(),
			Volume0:      new(uint256.Int),
			Volume1:      new(uint256.Int),
			LiveTick:     state.Slot0.Tick,
			LiveReserve0: liveReserves[0],
			LiveReserve1: liveReserves[1],
		},
	}, nil
}

func clamp(x, lower, upper *uint256.Int) *uint256.Int {
	switch {
	case x.Lt(lower):
		return lower.Clone()
	case x.Gt(upper):
		return upper.Clone()
	default:
		return x.Clone()
	}
}

func (r *Replayer) Pool() *pool.Pool { return r.pool }

// Apply replays one record. Records that are not swaps of the forked pool are ignored.
func (r *Replayer) Apply(ctx context.Context, record model.LogRecord) error {
	if !common.IsHexAddress(record.Address) || common.HexToAddress(record.Address) != r.cfg.Pool {
		return nil
	}
	event, err := r.decoder.Decode(record, dex.DecodeContext{Context: ctx, PoolMetaCache: r.metas, Logger: r.logger})
	if err != nil {
		return fmt.Errorf("decode block %d log %d: %w", record.BlockNumber, record.LogIndex, err)
	}
	swap, ok := event.Decoded.(model.SwapEventData)
	if !ok {
		return nil
	}
	r.report.Swaps++
	r.report.LiveTick = swap.Tick

	amount0, ok0 := new(big.Int).SetString(swap.Amount0, 10)
	amount1, ok1 := new(big.Int).SetString(swap.Amount1, 10)
	if !ok0 || !ok1 {
		return fmt.Errorf("swap amounts (%q, %q)", swap.Amount0, swap.Amount1)
	}
	zeroForOne, amountIn := true, amount0
	if amount0.Sign() <= 0 {
		zeroForOne, amountIn = false, amount1
	}
	if amountIn.Sign() <= 0 {
		r.report.Skipped++
		return nil
	}

	result, err := r.pool.Swap(ctx, TraderAccount, TraderAccount, zeroForOne, amountIn, nil, r.pool.PayFrom(TraderAccount), nil)
	if errors.Is(err, pool.ErrNoLiquidity) {
		r.report.Skipped++
		return nil
	}
	if err != nil {
		return fmt.Errorf("replay swap block %d log %d: %w", record.BlockNumber, record.LogIndex, err)
	}
	if !result.Filled() {
		r.report.Skipped++
		return nil
	}

	in := result.Amount0
	volume := r.report.Volume0
	if !zeroForOne {
		in, volume = result.Amount1, r.report.Volume1
	}
	absorbed, err := fixedpoint.FromBig(in)
	if err != nil {
		return err
	}
	volume.Add(volume, absorbed)
	r.report.Replayed++
	if in.Cmp(amountIn) < 0 {
		r.report.PartialFills++
	}
	return nil
}

// ReplayFile applies every record of a JSONL log file in order.
func (r *Replayer) ReplayFile(ctx context.Context, path string) error {
	return storage.ReadLogRecords(path, func(record model.LogRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.Apply(ctx, record)
	})
}

// Report returns the counters so far and the fees the LP has earned, including fees
// not yet credited to its position.
func (r *Replayer) Report() (Report, error) {
	state := r.pool.State()
	pos := r.pool.GetPosition(LPAccount)
	fees0, err := pendingFees(state.FeeGrowthGlobal0X128, &pos.FeeGrowthInside0LastX128, &pos.Liquidity, &pos.TokensOwed0)
	if err != nil {
		return Report{}, err
	}
	fees1, err := pendingFees(state.FeeGrowthGlobal1X128, &pos.FeeGrowthInside1LastX128, &pos.Liquidity, &pos.TokensOwed1)
	if err != nil {
		return Report{}, err
	}

	report := r.report
	report.Volume0 = r.report.Volume0.Clone()
	report.Volume1 = r.report.Volume1.Clone()
	report.Fees0, report.Fees1 = fees0, fees1
	report.SqrtPriceX96 = state.SqrtPriceX96
	report.Tick = state.Tick
	return report, nil
}

func pendingFees(growth, last, liquidity, owed *uint256.Int) (*uint256.Int, error) {
	delta := new(uint256.Int)
	if growth.Gt(last) {
		delta.Sub(growth, last)
	}
	earned, err := fixedpoint.MulDiv(delta, liquidity, fixedpoint.Q128)
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(earned, owed)
	if overflow {
		return nil, fixedpoint.ErrOverflow
	}
	return total, nil
}
