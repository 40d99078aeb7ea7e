package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadAggregatePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rangeamm.yaml")
	if err := os.WriteFile(path, []byte("batch-size: 42\nwindow: 10m\nstate-file: ./state.json\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RANGEAMM_PG_DSN", "postgres://localhost/rangeamm")

	flags := pflag.NewFlagSet("aggregate", pflag.ContinueOnError)
	flags.String("window", "5m", "")
	flags.String("in", "", "")
	if err := flags.Parse([]string{"--window", "1h", "--in", "typed.jsonl"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadAggregate(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Window != time.Hour || cfg.Input != "typed.jsonl" {
		t.Fatalf("flags should win: %+v", cfg)
	}
	if cfg.BatchSize != 42 || cfg.StateFile != "./state.json" {
		t.Fatalf("config file values missing: %+v", cfg)
	}
	if cfg.PGDSN != "postgres://localhost/rangeamm" {
		t.Fatalf("env value missing: %q", cfg.PGDSN)
	}
	seconds, err := cfg.WindowSeconds()
	if err != nil || seconds != 3600 {
		t.Fatalf("window seconds mismatch: %d %v", seconds, err)
	}
}

func TestWindowSecondsRejectsSubSecond(t *testing.T) {
	if _, err := (AggregateConfig{Window: 500 * time.Millisecond}).WindowSeconds(); err == nil {
		t.Fatalf("expected error for sub-second window")
	}
	if _, err := (AggregateConfig{}).WindowSeconds(); err == nil {
		t.Fatalf("expected error for zero window")
	}
}

func TestLoadReplayDefaultsAndEnv(t *testing.T) {
	t.Setenv("RANGEAMM_TICK_LOWER", "-600")
	t.Setenv("RANGEAMM_TICK_UPPER", "600")

	cfg, err := LoadReplay("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TickLower != -600 || cfg.TickUpper != 600 {
		t.Fatalf("tick range mismatch: %d %d", cfg.TickLower, cfg.TickUpper)
	}
	if !cfg.CheckpointEnabled || cfg.BatchSize != 2000 || cfg.MaxRetries != 5 || cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("defaults mismatch: %+v", cfg)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level default mismatch: %q", cfg.LogLevel)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := LoadSimulate(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for explicit missing config file")
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]uint64{
		"":                     0,
		"1700000000":           1700000000,
		"2024-01-01T00:00:00Z": 1704067200,
	}
	for input, want := range cases {
		got, err := ParseTimestamp(input)
		if err != nil || got != want {
			t.Fatalf("ParseTimestamp(%q) = %d, %v; want %d", input, got, err, want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseStringMap(t *testing.T) {
	got := parseStringMap("0xabc=Swap, 0xdef = Mint ,broken,=x")
	want := map[string]string{"0xabc": "Swap", "0xdef": "Mint"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("map mismatch: %v", got)
	}
}
