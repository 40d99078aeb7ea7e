package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rangeAMM/internal/chain"
	"rangeAMM/internal/config"
	"rangeAMM/internal/replay"
	"rangeAMM/internal/storage"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Pool) {
		return fmt.Errorf("invalid pool address: %q", cfg.Pool)
	}
	if cfg.Logs == "" {
		return fmt.Errorf("logs path is required")
	}
	liquidity, err := uint256.FromDecimal(cfg.Liquidity)
	if err != nil {
		return fmt.Errorf("invalid liquidity %q: %w", cfg.Liquidity, err)
	}
	poolAddress := common.HexToAddress(cfg.Pool)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, cfg.RequestsPerSec)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	logger.Info("replay start",
		zap.String("pool", poolAddress.Hex()),
		zap.Uint64("from_block", cfg.FromBlock),
		zap.Uint64("to_block", cfg.ToBlock),
		zap.Int32("tick_lower", cfg.TickLower),
		zap.Int32("tick_upper", cfg.TickUpper),
		zap.String("liquidity", liquidity.ToBig().String()),
		zap.String("logs", cfg.Logs),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	fetcher := replay.NewFetcher(replay.FetchConfig{
		Pool:              poolAddress,
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, storage.NewJsonlStorage(cfg.Logs), logger)
	fetched, err := fetcher.Run(ctx)
	if err != nil {
		return err
	}

	var sinks []storage.Storage
	if cfg.Events != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Events))
	}
	replayer, err := replay.Fork(ctx, chainClient, replay.Config{
		Pool:      poolAddress,
		ForkBlock: cfg.FromBlock,
		TickLower: cfg.TickLower,
		TickUpper: cfg.TickUpper,
		Liquidity: liquidity,
	}, sinks, logger)
	if err != nil {
		return err
	}
	if err := replayer.ReplayFile(ctx, cfg.Logs); err != nil {
		return err
	}

	report, err := replayer.Report()
	if err != nil {
		return err
	}
	logger.Info("replay complete",
		zap.Int("batches", fetched.Batches),
		zap.Int("fetched", fetched.Logs),
		zap.Int("swaps", report.Swaps),
		zap.Int("replayed", report.Replayed),
		zap.Int("partial_fills", report.PartialFills),
		zap.Int("skipped", report.Skipped),
		zap.String("volume0", decimalString(report.Volume0)),
		zap.String("volume1", decimalString(report.Volume1)),
		zap.String("fees0", decimalString(report.Fees0)),
		zap.String("fees1", decimalString(report.Fees1)),
		zap.String("sqrt_price_x96", decimalString(report.SqrtPriceX96)),
		zap.Int32("tick", report.Tick),
		zap.Int32("live_tick", report.LiveTick),
		zap.String("live_reserve0", bigString(report.LiveReserve0)),
		zap.String("live_reserve1", bigString(report.LiveReserve1)),
	)
	return nil
}

func bigString(x *big.Int) string {
	if x == nil {
		return "unknown"
	}
	return x.String()
}
