// Package aggregate folds a typed notification journal into per-pool window metrics:
// swap count, volume, approximate fees, end-of-window reserves, fee rates and APR.
package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"rangeAMM/internal/model"
)

const (
	feeMethodApprox       = "approx_from_fee_tier"
	reserveMethodJournal  = "journal"
	reserveMethodNone     = "unavailable"
	defaultMetricsBatch   = 1000
	maxTypedEventLineSize = 10 * 1024 * 1024
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Stats summarizes one run.
type Stats struct {
	Total   int
	Windows int
	Pools   int
	Skipped int
	Ignored int
	Failed  int
}

// Aggregator aggregates typed events into pool window metrics.
type Aggregator struct {
	cfg          Config
	sink         MetricsSink
	decimals     *TokenDecimalsCache
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	reserves     map[string]*Reserves
	poolSeen     map[string]model.Pool
}

// NewAggregator builds an aggregator. tokens may be nil, in which case amounts are
// reported in raw token units.
func NewAggregator(cfg Config, sink MetricsSink, tokens TokenMetaSource, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		decimals:     NewTokenDecimalsCache(tokens),
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		reserves:     make(map[string]*Reserves),
		poolSeen:     make(map[string]model.Pool),
	}
}

// Run aggregates a typed events JSONL file. Events at or before the resume point still
// move reserves but open no window.
func (a *Aggregator) Run(ctx context.Context, inputPath string) (Stats, error) {
	if a.sink == nil {
		return Stats{}, fmt.Errorf("metrics sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return Stats{}, fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = defaultMetricsBatch
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return Stats{}, err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return Stats{}, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxTypedEventLineSize)

	var stats Stats
	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 16)
	maxTs := startTs

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			continue
		}

		if record.EventName == model.EventPoolCreated {
			pool, err := a.registerPool(record)
			if err != nil {
				stats.Failed++
				a.logger.Warn("register pool", zap.Error(err), zap.Uint64("seq", record.BlockNumber))
				continue
			}
			if pool != nil {
				pools = append(pools, *pool)
				stats.Pools++
			}
			continue
		}
		if !isPoolEvent(record.EventName) {
			stats.Ignored++
			continue
		}

		effect, err := ParseEffect(record)
		if err != nil {
			stats.Failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Address), zap.String("event", record.EventName))
			continue
		}

		key := poolKey(record.Address)
		reserves := a.reserves[key]
		if reserves == nil {
			reserves = newReserves(false)
			a.reserves[key] = reserves
		}
		if record.Timestamp <= startTs {
			reserves.apply(effect)
			stats.Skipped++
			continue
		}

		start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		acc := a.accumulators[key]
		if acc != nil && acc.WindowStart != start {
			if metrics := a.flushAccumulator(ctx, acc); metrics != nil {
				batch = append(batch, *metrics)
				stats.Windows++
			}
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(record, start, start+a.cfg.WindowSeconds)
			a.accumulators[key] = acc
		}
		acc.AddEvent(record, effect)
		reserves.apply(effect)

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return stats, err
			}
			batch = batch[:0]
			pools = pools[:0]
			if err := a.saveState(ctx); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}

	for _, acc := range a.accumulators {
		if metrics := a.flushAccumulator(ctx, acc); metrics != nil {
			batch = append(batch, *metrics)
			stats.Windows++
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if err := a.flushBatches(ctx, batch, pools); err != nil {
		return stats, err
	}
	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return stats, err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", stats.Total),
		zap.Int("windows", stats.Windows),
		zap.Int("pools", stats.Pools),
		zap.Int("skipped", stats.Skipped),
		zap.Int("ignored", stats.Ignored),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func isPoolEvent(name string) bool {
	switch name {
	case model.EventInitialize, model.EventMint, model.EventBurn, model.EventCollect, model.EventSwap:
		return true
	}
	return false
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// saveState records the last timestamp before any window still open.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}
	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs--
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.sink.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) *model.PoolWindowMetrics {
	if acc == nil {
		return nil
	}
	meta := acc.PoolMeta
	if meta.Token0 == "" || meta.Token1 == "" {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil
	}

	decimals0, err := a.decimals.Decimals(ctx, meta.Token0)
	if err != nil {
		a.logger.Warn("token0 decimals", zap.String("token", meta.Token0), zap.Error(err))
	}
	decimals1, err := a.decimals.Decimals(ctx, meta.Token1)
	if err != nil {
		a.logger.Warn("token1 decimals", zap.String("token", meta.Token1), zap.Error(err))
	}

	metrics := &model.PoolWindowMetrics{
		ChainID:        acc.ChainID,
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		Volume0:        formatTokenAmount(acc.Volume0, decimals0),
		Volume1:        formatTokenAmount(acc.Volume1, decimals1),
		Fee0:           formatTokenAmount(acc.Fee0, decimals0),
		Fee1:           formatTokenAmount(acc.Fee1, decimals1),
		FeeMethod:      feeMethodApprox,
		ReserveMethod:  reserveMethodNone,
	}

	reserves := a.reserves[poolKey(acc.PoolAddress)]
	if reserves == nil || !reserves.Tracked {
		return metrics
	}
	reserve0 := formatTokenAmount(reserves.Token0, decimals0)
	reserve1 := formatTokenAmount(reserves.Token1, decimals1)
	metrics.Reserve0 = &reserve0
	metrics.Reserve1 = &reserve1
	metrics.ReserveMethod = reserveMethodJournal
	metrics.FeeRate0, metrics.FeeRate1 = computeFeeRates(acc.Fee0, acc.Fee1, reserves.Token0, reserves.Token1)
	metrics.APR = computeAPR(acc.Fee0, acc.Fee1, reserves.Token0, reserves.Token1, reserves.SqrtPriceX96, a.cfg.WindowSeconds)
	return metrics
}

// registerPool records a PoolCreated notification. It returns nil for a pool already
// registered at an earlier sequence.
func (a *Aggregator) registerPool(record model.TypedEventRecord) (*model.Pool, error) {
	var created model.PoolCreatedEventData
	if err := json.Unmarshal(record.Decoded, &created); err != nil {
		return nil, fmt.Errorf("decode pool created: %w", err)
	}
	if created.Pool == "" {
		return nil, fmt.Errorf("pool created without pool address")
	}
	key := poolKey(created.Pool)
	if existing, ok := a.poolSeen[key]; ok && existing.CreatedAtSeq <= record.BlockNumber {
		return nil, nil
	}

	pool := model.Pool{
		ChainID:      record.ChainID,
		Address:      created.Pool,
		Token0:       created.Token0,
		Token1:       created.Token1,
		Fee:          created.Fee,
		TickLower:    created.TickLower,
		TickUpper:    created.TickUpper,
		Index:        len(a.poolSeen),
		CreatedAtSeq: record.BlockNumber,
	}
	a.poolSeen[key] = pool
	if _, ok := a.reserves[key]; !ok {
		a.reserves[key] = newReserves(true)
	}
	return &pool, nil
}

// Reserves returns the running balances reconstructed for pool so far.
func (a *Aggregator) Reserves(pool string) (*big.Int, *big.Int, bool) {
	reserves, ok := a.reserves[poolKey(pool)]
	if !ok {
		return nil, nil, false
	}
	return new(big.Int).Set(reserves.Token0), new(big.Int).Set(reserves.Token1), reserves.Tracked
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
