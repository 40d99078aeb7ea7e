package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "rangeamm",
		Short:        "Single-range concentrated liquidity engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario file against a fresh engine",
		RunE:  runSimulate,
	}
	simulateCmd.Flags().String("scenario", "", "scenario file (yaml, json or toml)")
	simulateCmd.Flags().String("events", "./data/events.jsonl", "notification journal JSONL")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for notifications and pool records")
	simulateCmd.Flags().Uint64("chain-id", 0, "chain id stamped on notifications, overrides the scenario")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(simulateCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a notification journal or chain logs into typed events",
		RunE:  runDecode,
	}
	decodeCmd.Flags().String("rpc", "", "optional RPC URL for pools not created in the input")
	decodeCmd.Flags().Int("rps", 10, "RPC requests per second, 0 for unlimited")
	decodeCmd.Flags().String("in", "", "input log records JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().Bool("include-live-meta", false, "include slot0/liquidity read over RPC")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed events into window metrics",
		RunE:  runAggregate,
	}
	aggregateCmd.Flags().String("rpc", "", "optional RPC URL for token decimals")
	aggregateCmd.Flags().Int("rps", 10, "RPC requests per second, 0 for unlimited")
	aggregateCmd.Flags().String("in", "", "input typed events JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN; metrics are logged when empty")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for metric writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(aggregateCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Backtest a range against a live pool's swap history",
		RunE:  runReplay,
	}
	replayCmd.Flags().String("rpc", "", "RPC URL")
	replayCmd.Flags().Int("rps", 10, "RPC requests per second, 0 for unlimited")
	replayCmd.Flags().String("pool", "", "live V3 pool address")
	replayCmd.Flags().Uint64("from", 0, "fork block and first block to replay")
	replayCmd.Flags().Uint64("to", 0, "last block to replay, 0 means latest")
	replayCmd.Flags().Int32("tick-lower", 0, "lower tick of the engine range")
	replayCmd.Flags().Int32("tick-upper", 0, "upper tick of the engine range")
	replayCmd.Flags().String("liquidity", "", "liquidity minted by the simulated LP")
	replayCmd.Flags().Uint64("batch-size", 2000, "blocks per log request")
	replayCmd.Flags().String("logs", "./data/swaps.jsonl", "fetched swap logs JSONL")
	replayCmd.Flags().String("events", "", "optional engine notification journal JSONL")
	replayCmd.Flags().String("checkpoint", "./data/replay_checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
