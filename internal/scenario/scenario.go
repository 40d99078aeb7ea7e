// Package scenario drives a fresh engine from a declarative YAML, JSON or TOML file.
package scenario

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"
)

// Scenario is a list of steps run in order against one engine.
type Scenario struct {
	ChainID  uint64            `mapstructure:"chain_id"`
	Accounts map[string]string `mapstructure:"accounts"`
	Steps    []Step            `mapstructure:"steps"`
}

// Step is one engine call. Which fields matter depends on Op. Account is the caller
// (payer, sender or owner). Amounts are decimal strings; "max" means 2^128-1.
type Step struct {
	Op          string `mapstructure:"op"`
	As          string `mapstructure:"as"`
	ExpectError string `mapstructure:"expect_error"`

	Account   string `mapstructure:"account"`
	Recipient string `mapstructure:"recipient"`
	From      string `mapstructure:"from"`
	To        string `mapstructure:"to"`
	Spender   string `mapstructure:"spender"`
	Operator  string `mapstructure:"operator"`
	Approved  bool   `mapstructure:"approved"`

	Pool     string `mapstructure:"pool"`
	Position string `mapstructure:"position"`

	Token     string `mapstructure:"token"`
	TokenA    string `mapstructure:"token_a"`
	TokenB    string `mapstructure:"token_b"`
	TokenIn   string `mapstructure:"token_in"`
	TokenOut  string `mapstructure:"token_out"`
	TickLower int32  `mapstructure:"tick_lower"`
	TickUpper int32  `mapstructure:"tick_upper"`
	Fee       uint32 `mapstructure:"fee"`
	Path      []int  `mapstructure:"path"`

	ZeroForOne   bool   `mapstructure:"zero_for_one"`
	SqrtPriceX96 string `mapstructure:"sqrt_price_x96"`
	Amount       string `mapstructure:"amount"`
	Limit        string `mapstructure:"limit"`
	Liquidity    string `mapstructure:"liquidity"`
	Amount0      string `mapstructure:"amount0"`
	Amount1      string `mapstructure:"amount1"`
	Amount0Min   string `mapstructure:"amount0_min"`
	Amount1Min   string `mapstructure:"amount1_min"`
}

// Load reads a scenario file. The format follows the file extension.
func Load(path string) (Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return decode(v)
}

// Parse reads a scenario of the given format ("yaml", "json", "toml") from r.
func Parse(r io.Reader, format string) (Scenario, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (Scenario, error) {
	v.SetDefault("chain_id", uint64(31337))

	sc := Scenario{ChainID: v.GetUint64("chain_id")}
	if err := v.UnmarshalKey("accounts", &sc.Accounts); err != nil {
		return Scenario{}, fmt.Errorf("decode accounts: %w", err)
	}
	if err := v.UnmarshalKey("steps", &sc.Steps); err != nil {
		return Scenario{}, fmt.Errorf("decode steps: %w", err)
	}
	if len(sc.Steps) == 0 {
		return Scenario{}, fmt.Errorf("scenario has no steps")
	}
	for i, step := range sc.Steps {
		op := strings.ToLower(strings.TrimSpace(step.Op))
		if _, ok := handlers[op]; !ok {
			return Scenario{}, fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}
		sc.Steps[i].Op = op
		if step.ExpectError != "" {
			if _, ok := errorTags[step.ExpectError]; !ok {
				return Scenario{}, fmt.Errorf("step %d: unknown error tag %q", i, step.ExpectError)
			}
		}
	}
	return sc, nil
}
