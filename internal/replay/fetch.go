package replay

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"rangeAMM/internal/dex"
	"rangeAMM/internal/model"
	"rangeAMM/internal/storage"
)

// Source is the chain access replay needs. *chain.Client satisfies it.
type Source interface {
	dex.ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// FetchConfig selects the swap history to download.
type FetchConfig struct {
	Pool              common.Address
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// FetchStats summarizes one fetch run.
type FetchStats struct {
	From    uint64
	To      uint64
	Batches int
	Logs    int
}

// Fetcher downloads a live pool's Swap logs in block batches into a storage sink.
type Fetcher struct {
	cfg        FetchConfig
	source     Source
	sink       storage.Storage
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
	clock      func() time.Time
}

func NewFetcher(cfg FetchConfig, source Source, sink storage.Storage, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:        cfg,
		source:     source,
		sink:       sink,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		clock:      time.Now,
	}
}

// Run fetches every batch after the checkpoint and saves the checkpoint after each one.
func (f *Fetcher) Run(ctx context.Context) (FetchStats, error) {
	if f.source == nil {
		return FetchStats{}, fmt.Errorf("chain source is nil")
	}
	if f.sink == nil {
		return FetchStats{}, fmt.Errorf("storage is nil")
	}
	if f.cfg.BatchSize == 0 {
		return FetchStats{}, fmt.Errorf("batch size must be greater than zero")
	}
	if f.cfg.Pool == (common.Address{}) {
		return FetchStats{}, fmt.Errorf("pool address is required")
	}

	swapTopic, err := dex.EventTopic(model.EventSwap)
	if err != nil {
		return FetchStats{}, err
	}
	chainID, err := f.source.ChainID(ctx)
	if err != nil {
		return FetchStats{}, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return FetchStats{}, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	from, to := f.cfg.FromBlock, f.cfg.ToBlock
	if to == 0 {
		if to, err = f.source.LatestBlockNumber(ctx); err != nil {
			return FetchStats{}, fmt.Errorf("get latest block: %w", err)
		}
	}
	pool := f.cfg.Pool.Hex()
	cp, ok, err := f.checkpoint.Load(pool)
	if err != nil {
		return FetchStats{}, err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		f.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}

	stats := FetchStats{From: from, To: to}
	if from > to {
		f.logger.Info("nothing to fetch", zap.Uint64("from", from), zap.Uint64("to", to))
		return stats, nil
	}
	ranges, err := SplitRange(from, to, f.cfg.BatchSize)
	if err != nil {
		return FetchStats{}, err
	}

	topics := []common.Hash{common.HexToHash(swapTopic)}
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var logs []types.Log
		err := withRetry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			logs, err = f.source.FilterLogs(ctx, blockRange.From, blockRange.To, []common.Address{f.cfg.Pool}, topics)
			if err != nil {
				f.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
			}
			return err
		})
		if err != nil {
			return stats, fmt.Errorf("filter logs: %w", err)
		}

		recordedAt := f.clock().UTC()
		records := make([]model.LogRecord, 0, len(logs))
		for _, log := range logs {
			if log.Removed || f.isDuplicate(log) {
				continue
			}
			var ts uint64
			err := withRetry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
				var err error
				ts, err = f.source.BlockTimestamp(ctx, log.BlockNumber)
				return err
			})
			if err != nil {
				return stats, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			records = append(records, buildLogRecord(chainID.Uint64(), log, ts, recordedAt))
		}

		if err := f.sink.PutLogBatch(records); err != nil {
			return stats, fmt.Errorf("store logs: %w", err)
		}
		if err := f.checkpoint.Save(pool, blockRange.To); err != nil {
			return stats, err
		}
		stats.Batches++
		stats.Logs += len(records)
		f.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}
	return stats, nil
}

func (f *Fetcher) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := f.seen[id]; ok {
		return true
	}
	f.seen[id] = struct{}{}
	return false
}

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64, recordedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}
	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Timestamp:   timestamp,
		Source:      model.SourceChain,
		RecordedAt:  recordedAt.Format(time.RFC3339Nano),
	}
}
