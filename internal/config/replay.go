package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	RPCURL            string
	RequestsPerSec    int
	Pool              string
	FromBlock         uint64
	ToBlock           uint64
	TickLower         int32
	TickUpper         int32
	Liquidity         string
	BatchSize         uint64
	Logs              string
	Events            string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	LogLevel          string
}

func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"rps":                10,
		"batch-size":         uint64(2000),
		"logs":               "./data/swaps.jsonl",
		"checkpoint":         "./data/replay_checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
	})
	if err != nil {
		return ReplayConfig{}, err
	}
	return ReplayConfig{
		RPCURL:            v.GetString("rpc"),
		RequestsPerSec:    v.GetInt("rps"),
		Pool:              v.GetString("pool"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		TickLower:         v.GetInt32("tick-lower"),
		TickUpper:         v.GetInt32("tick-upper"),
		Liquidity:         v.GetString("liquidity"),
		BatchSize:         v.GetUint64("batch-size"),
		Logs:              v.GetString("logs"),
		Events:            v.GetString("events"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LogLevel:          v.GetString("log-level"),
	}, nil
}
