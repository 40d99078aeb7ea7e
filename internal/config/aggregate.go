package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// AggregateConfig holds configuration for aggregation. RPCURL is optional and only used
// to resolve token decimals.
type AggregateConfig struct {
	RPCURL         string
	RequestsPerSec int
	Input          string
	Window         time.Duration
	PGDSN          string
	BatchSize      int
	StateFile      string
	RecomputeFrom  string
	LogLevel       string
}

func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size": 1000,
		"window":     "5m",
		"rps":        10,
	})
	if err != nil {
		return AggregateConfig{}, err
	}
	return AggregateConfig{
		RPCURL:         v.GetString("rpc"),
		RequestsPerSec: v.GetInt("rps"),
		Input:          v.GetString("in"),
		Window:         v.GetDuration("window"),
		PGDSN:          v.GetString("pg-dsn"),
		BatchSize:      v.GetInt("batch-size"),
		StateFile:      v.GetString("state-file"),
		RecomputeFrom:  v.GetString("recompute-from"),
		LogLevel:       v.GetString("log-level"),
	}, nil
}

// WindowSeconds validates the window and returns it in whole seconds.
func (c AggregateConfig) WindowSeconds() (uint64, error) {
	if c.Window <= 0 {
		return 0, fmt.Errorf("window must be positive")
	}
	seconds := uint64(c.Window / time.Second)
	if seconds == 0 {
		return 0, fmt.Errorf("window must be at least 1s")
	}
	return seconds, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	if isNumeric(input) {
		return strconv.ParseUint(input, 10, 64)
	}
	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
