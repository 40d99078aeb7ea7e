// Package config loads subcommand settings from flags, RANGEAMM_* environment variables
// and an optional config file, in that order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "RANGEAMM"

// newViper builds a viper instance with defaults, bound flags and the config file.
// Without an explicit file, ./config.* is read when present.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return v, nil
	}
	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Scenario string
	Events   string
	PGDSN    string
	ChainID  uint64
	LogLevel string
}

func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"events": "./data/events.jsonl",
	})
	if err != nil {
		return SimulateConfig{}, err
	}
	return SimulateConfig{
		Scenario: v.GetString("scenario"),
		Events:   v.GetString("events"),
		PGDSN:    v.GetString("pg-dsn"),
		ChainID:  v.GetUint64("chain-id"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
