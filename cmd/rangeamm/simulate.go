package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rangeAMM/internal/config"
	"rangeAMM/internal/scenario"
	"rangeAMM/internal/storage"
	"rangeAMM/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}
	if cfg.Events == "" {
		return fmt.Errorf("events path is required")
	}

	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}
	if cfg.ChainID != 0 {
		sc.ChainID = cfg.ChainID
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A fresh engine restarts its sequence at 1, so the journal starts empty.
	if dir := filepath.Dir(cfg.Events); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	if err := os.Remove(cfg.Events); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset events: %w", err)
	}
	sinks := []storage.Storage{storage.NewJsonlStorage(cfg.Events)}

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store.Sink(ctx))
	}

	engine, err := scenario.NewEngine(sc.ChainID, sinks, logger)
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("scenario", cfg.Scenario),
		zap.String("events", cfg.Events),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("chain_id", sc.ChainID),
		zap.Int("steps", len(sc.Steps)),
	)

	results, runErr := scenario.NewRunner(engine, logger).Run(ctx, sc)

	if store != nil {
		if err := store.UpsertPools(ctx, engine.Registry.Records(sc.ChainID)); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}

	for _, summary := range engine.Summary() {
		logger.Info("pool",
			zap.String("address", summary.Record.Address),
			zap.String("token0", summary.Record.Token0),
			zap.String("token1", summary.Record.Token1),
			zap.Uint32("fee", summary.Record.Fee),
			zap.Int32("tick_lower", summary.Record.TickLower),
			zap.Int32("tick_upper", summary.Record.TickUpper),
			zap.Bool("initialized", summary.State.Initialized),
			zap.String("sqrt_price_x96", decimalString(summary.State.SqrtPriceX96)),
			zap.Int32("tick", summary.State.Tick),
			zap.String("liquidity", decimalString(summary.State.Liquidity)),
			zap.String("reserve0", summary.Reserve0),
			zap.String("reserve1", summary.Reserve1),
		)
	}

	logger.Info("simulate complete",
		zap.Int("executed", len(results)),
		zap.Int("pools", engine.Registry.PoolCount()),
		zap.Uint64("notifications", engine.Stream.Seq()),
	)
	return runErr
}

func decimalString(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.ToBig().String()
}
