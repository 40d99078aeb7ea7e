package scenario

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/pool"
	"rangeAMM/internal/positions"
	"rangeAMM/internal/router"
)

// Output is what a step returned, as decimal strings keyed by name.
type Output map[string]string

// StepResult records one executed step.
type StepResult struct {
	Index  int
	Op     string
	Output Output
	Err    error
}

type handler func(r *Runner, ctx context.Context, step Step) (Output, error)

var handlers = map[string]handler{
	"fund":               (*Runner).fund,
	"create_pool":        (*Runner).createPool,
	"initialize":         (*Runner).initialize,
	"mint":               (*Runner).mint,
	"burn":               (*Runner).burn,
	"collect":            (*Runner).collect,
	"swap":               (*Runner).swap,
	"exact_input":        (*Runner).exactInput,
	"exact_output":       (*Runner).exactOutput,
	"quote_exact_input":  (*Runner).quoteExactInput,
	"quote_exact_output": (*Runner).quoteExactOutput,
	"position_mint":      (*Runner).positionMint,
	"position_increase":  (*Runner).positionIncrease,
	"position_decrease":  (*Runner).positionDecrease,
	"position_collect":   (*Runner).positionCollect,
	"position_burn":      (*Runner).positionBurn,
	"position_transfer":  (*Runner).positionTransfer,
	"position_approve":   (*Runner).positionApprove,
}

// Runner executes scenario steps against an Engine. Names that are not hex addresses
// resolve through the scenario's accounts, then through a keccak derivation, so a
// scenario can say "alice" without spelling out an address.
type Runner struct {
	engine    *Engine
	logger    *zap.Logger
	accounts  map[string]common.Address
	pools     map[string]common.Address
	positions map[string]uint64
}

func NewRunner(engine *Engine, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		engine:    engine,
		logger:    logger,
		accounts:  make(map[string]common.Address),
		pools:     make(map[string]common.Address),
		positions: make(map[string]uint64),
	}
}

// Run executes every step. A step with expect_error must fail with that tag and the run
// continues; any other failure stops the run. Results cover every step executed.
func (r *Runner) Run(ctx context.Context, sc Scenario) ([]StepResult, error) {
	for name, address := range sc.Accounts {
		if !common.IsHexAddress(address) {
			return nil, fmt.Errorf("account %s: invalid address %q", name, address)
		}
		r.accounts[strings.ToLower(name)] = common.HexToAddress(address)
	}

	results := make([]StepResult, 0, len(sc.Steps))
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		run, ok := handlers[step.Op]
		if !ok {
			return results, fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}
		out, err := run(r, ctx, step)
		results = append(results, StepResult{Index: i, Op: step.Op, Output: out, Err: err})

		switch {
		case step.ExpectError != "" && err == nil:
			return results, fmt.Errorf("step %d (%s): expected %s, succeeded", i, step.Op, step.ExpectError)
		case step.ExpectError != "" && !matchesTag(err, step.ExpectError):
			return results, fmt.Errorf("step %d (%s): expected %s, got %w", i, step.Op, step.ExpectError, err)
		case step.ExpectError == "" && err != nil:
			return results, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}

		fields := []zap.Field{zap.Int("step", i), zap.String("op", step.Op)}
		for key, value := range out {
			fields = append(fields, zap.String(key, value))
		}
		if err != nil {
			fields = append(fields, zap.NamedError("expected_error", err))
		}
		r.logger.Info("step", fields...)
	}
	return results, nil
}

// address resolves a name or hex literal. An empty name resolves to fallback.
func (r *Runner) address(name string, fallback common.Address) common.Address {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	if common.IsHexAddress(name) {
		return common.HexToAddress(name)
	}
	key := strings.ToLower(name)
	if address, ok := r.accounts[key]; ok {
		return address
	}
	address := common.BytesToAddress(crypto.Keccak256([]byte(key))[12:])
	r.accounts[key] = address
	return address
}

func (r *Runner) account(step Step) common.Address {
	return r.address(step.Account, common.Address{})
}

func (r *Runner) pool(name string) (*pool.Pool, error) {
	address, ok := r.pools[strings.ToLower(name)]
	if !ok {
		if !common.IsHexAddress(name) {
			return nil, fmt.Errorf("unknown pool %q", name)
		}
		address = common.HexToAddress(name)
	}
	return r.engine.Registry.Lookup(address)
}

func (r *Runner) position(name string) (uint64, error) {
	if id, ok := r.positions[strings.ToLower(name)]; ok {
		return id, nil
	}
	id, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown position %q", name)
	}
	return id, nil
}

// amount parses an unsigned amount. Empty yields nil.
func amount(value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	switch value {
	case "":
		return nil, nil
	case "max":
		return fixedpoint.MaxUint128.Clone(), nil
	}
	parsed, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", value, err)
	}
	return parsed, nil
}

func requiredAmount(field, value string) (*uint256.Int, error) {
	parsed, err := amount(value)
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, fmt.Errorf("%s is required", field)
	}
	return parsed, nil
}

func signedAmount(value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not an integer", value)
	}
	return parsed, nil
}

func dec(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.ToBig().String()
}

func (r *Runner) fund(_ context.Context, step Step) (Output, error) {
	value, err := requiredAmount("amount", step.Amount)
	if err != nil {
		return nil, err
	}
	tok := r.address(step.Token, common.Address{})
	if err := r.engine.Ledger.Mint(tok, r.account(step), value); err != nil {
		return nil, err
	}
	return Output{"token": tok.Hex(), "balance": dec(r.engine.Ledger.BalanceOf(tok, r.account(step)))}, nil
}

func (r *Runner) createPool(_ context.Context, step Step) (Output, error) {
	tokenA := r.address(step.TokenA, common.Address{})
	tokenB := r.address(step.TokenB, common.Address{})
	address, err := r.engine.Registry.CreatePool(tokenA, tokenB, step.TickLower, step.TickUpper, step.Fee)
	if err != nil {
		return nil, err
	}
	if step.As != "" {
		r.pools[strings.ToLower(step.As)] = address
	}
	return Output{"pool": address.Hex()}, nil
}

func (r *Runner) initialize(ctx context.Context, step Step) (Output, error) {
	p, err := r.pool(step.Pool)
	if err != nil {
		return nil, err
	}
	price, err := requiredAmount("sqrt_price_x96", step.SqrtPriceX96)
	if err != nil {
		return nil, err
	}
	if err := p.Initialize(ctx, price); err != nil {
		return nil, err
	}
	return Output{"tick": strconv.FormatInt(int64(p.Slot0().Tick), 10)}, nil
}

func (r *Runner) mint(ctx context.Context, step Step) (Output, error) {
	p, err := r.pool(step.Pool)
	if err != nil {
		return nil, err
	}
	liquidity, err := requiredAmount("liquidity", step.Liquidity)
	if err != nil {
		return nil, err
	}
	sender := r.account(step)
	amount0, amount1, err := p.Mint(ctx, sender, r.address(step.Recipient, sender), liquidity, p.PayFrom(sender), nil)
	if err != nil {
		return nil, err
	}
	return Output{"amount0": dec(amount0), "amount1": dec(amount1)}, nil
}

func (r *Runner) burn(ctx context.Context, step Step) (Output, error) {
	p, err := r.pool(step.Pool)
	if err != nil {
		return nil, err
	}
	liquidity, err := amount(step.Liquidity)
	if err != nil {
		return nil, err
	}
	if liquidity == nil {
		liquidity = new(uint256.Int)
	}
	amount0, amount1, err := p.Burn(ctx, r.account(step), liquidity)
	if err != nil {
		return nil, err
	}
	return Output{"amount0": dec(amount0), "amount1": dec(amount1)}, nil
}

func (r *Runner) collect(ctx context.Context, step Step) (Output, error) {
	p, err := r.pool(step.Pool)
	if err != nil {
		return nil, err
	}
	req0, err := amount(step.Amount0)
	if err != nil {
		return nil, err
	}
	req1, err := amount(step.Amount1)
	if err != nil {
		return nil, err
	}
	if req0 == nil {
		req0 = fixedpoint.MaxUint128.Clone()
	}
	if req1 == nil {
		req1 = fixedpoint.MaxUint128.Clone()
	}
	owner := r.account(step)
	amount0, amount1, err := p.Collect(ctx, owner, r.address(step.Recipient, owner), req0, req1)
	if err != nil {
		return nil, err
	}
	return Output{"amount0": dec(amount0), "amount1": dec(amount1)}, nil
}

func (r *Runner) swap(ctx context.Context, step Step) (Output, error) {
	p, err := r.pool(step.Pool)
	if err != nil {
		return nil, err
	}
	specified, err := signedAmount(step.Amount)
	if err != nil {
		return nil, err
	}
	limit, err := amount(step.Limit)
	if err != nil {
		return nil, err
	}
	sender := r.account(step)
	result, err := p.Swap(ctx, sender, r.address(step.Recipient, sender), step.ZeroForOne, specified, limit, p.PayFrom(sender), nil)
	if err != nil {
		return nil, err
	}
	return Output{
		"amount0":        result.Amount0.String(),
		"amount1":        result.Amount1.String(),
		"sqrt_price_x96": dec(result.SqrtPriceX96),
		"tick":           strconv.FormatInt(int64(result.Tick), 10),
	}, nil
}

func quoteOutput(q router.Quote) Output {
	out := Output{"amount_in": dec(q.AmountIn), "amount_out": dec(q.AmountOut), "hops": strconv.Itoa(len(q.Hops))}
	for i, hop := range q.Hops {
		out[fmt.Sprintf("hop%d_pool", i)] = hop.Pool.Hex()
		out[fmt.Sprintf("hop%d_tick_after", i)] = strconv.FormatInt(int64(hop.TickAfter), 10)
	}
	return out
}

func (r *Runner) exactInput(ctx context.Context, step Step) (Output, error) {
	amountIn, err := requiredAmount("amount", step.Amount)
	if err != nil {
		return nil, err
	}
	minOut, err := amount(step.Limit)
	if err != nil {
		return nil, err
	}
	payer := r.account(step)
	q, err := r.engine.Router.ExactInput(ctx, router.ExactInputParams{
		TokenIn:          r.address(step.TokenIn, common.Address{}),
		TokenOut:         r.address(step.TokenOut, common.Address{}),
		Path:             step.Path,
		Payer:            payer,
		Recipient:        r.address(step.Recipient, payer),
		AmountIn:         amountIn,
		AmountOutMinimum: minOut,
	})
	if err != nil {
		return nil, err
	}
	return quoteOutput(q), nil
}

func (r *Runner) exactOutput(ctx context.Context, step Step) (Output, error) {
	amountOut, err := requiredAmount("amount", step.Amount)
	if err != nil {
		return nil, err
	}
	maxIn, err := amount(step.Limit)
	if err != nil {
		return nil, err
	}
	payer := r.account(step)
	q, err := r.engine.Router.ExactOutput(ctx, router.ExactOutputParams{
		TokenIn:         r.address(step.TokenIn, common.Address{}),
		TokenOut:        r.address(step.TokenOut, common.Address{}),
		Path:            step.Path,
		Payer:           payer,
		Recipient:       r.address(step.Recipient, payer),
		AmountOut:       amountOut,
		AmountInMaximum: maxIn,
	})
	if err != nil {
		return nil, err
	}
	return quoteOutput(q), nil
}

func (r *Runner) quoteExactInput(_ context.Context, step Step) (Output, error) {
	amountIn, err := requiredAmount("amount", step.Amount)
	if err != nil {
		return nil, err
	}
	q, err := r.engine.Router.QuoteExactInput(r.address(step.TokenIn, common.Address{}), r.address(step.TokenOut, common.Address{}), step.Path, amountIn)
	if err != nil {
		return nil, err
	}
	return quoteOutput(q), nil
}

func (r *Runner) quoteExactOutput(_ context.Context, step Step) (Output, error) {
	amountOut, err := requiredAmount("amount", step.Amount)
	if err != nil {
		return nil, err
	}
	q, err := r.engine.Router.QuoteExactOutput(r.address(step.TokenIn, common.Address{}), r.address(step.TokenOut, common.Address{}), step.Path, amountOut)
	if err != nil {
		return nil, err
	}
	return quoteOutput(q), nil
}

type amountSet struct {
	desired0, desired1, min0, min1 *uint256.Int
}

func amounts(step Step) (amountSet, error) {
	var set amountSet
	var err error
	for _, field := range []struct {
		dst   **uint256.Int
		value string
	}{
		{&set.desired0, step.Amount0},
		{&set.desired1, step.Amount1},
		{&set.min0, step.Amount0Min},
		{&set.min1, step.Amount1Min},
	} {
		if *field.dst, err = amount(field.value); err != nil {
			return amountSet{}, err
		}
	}
	return set, nil
}

func liquidityOutput(res positions.LiquidityResult) Output {
	return Output{"liquidity": dec(res.Liquidity), "amount0": dec(res.Amount0), "amount1": dec(res.Amount1)}
}

func (r *Runner) positionMint(ctx context.Context, step Step) (Output, error) {
	set, err := amounts(step)
	if err != nil {
		return nil, err
	}
	price, err := amount(step.SqrtPriceX96)
	if err != nil {
		return nil, err
	}
	payer := r.account(step)
	res, err := r.engine.Positions.Mint(ctx, positions.MintParams{
		Token0:         r.address(step.TokenA, common.Address{}),
		Token1:         r.address(step.TokenB, common.Address{}),
		TickLower:      step.TickLower,
		TickUpper:      step.TickUpper,
		Fee:            step.Fee,
		SqrtPriceX96:   price,
		Amount0Desired: set.desired0,
		Amount1Desired: set.desired1,
		Amount0Min:     set.min0,
		Amount1Min:     set.min1,
		Payer:          payer,
		Recipient:      r.address(step.Recipient, payer),
	})
	if err != nil {
		return nil, err
	}
	if step.As != "" {
		r.positions[strings.ToLower(step.As)] = res.ID
	}
	return Output{
		"id":        strconv.FormatUint(res.ID, 10),
		"pool":      res.Pool.Hex(),
		"liquidity": dec(res.Liquidity),
		"amount0":   dec(res.Amount0),
		"amount1":   dec(res.Amount1),
	}, nil
}

func (r *Runner) positionIncrease(ctx context.Context, step Step) (Output, error) {
	id, err := r.position(step.Position)
	if err != nil {
		return nil, err
	}
	set, err := amounts(step)
	if err != nil {
		return nil, err
	}
	res, err := r.engine.Positions.IncreaseLiquidity(ctx, positions.IncreaseParams{
		ID:             id,
		Payer:          r.account(step),
		Amount0Desired: set.desired0,
		Amount1Desired: set.desired1,
		Amount0Min:     set.min0,
		Amount1Min:     set.min1,
	})
	if err != nil {
		return nil, err
	}
	return liquidityOutput(res), nil
}

func (r *Runner) positionDecrease(ctx context.Context, step Step) (Output, error) {
	id, err := r.position(step.Position)
	if err != nil {
		return nil, err
	}
	liquidity, err := requiredAmount("liquidity", step.Liquidity)
	if err != nil {
		return nil, err
	}
	set, err := amounts(step)
	if err != nil {
		return nil, err
	}
	res, err := r.engine.Positions.DecreaseLiquidity(ctx, r.account(step), positions.DecreaseParams{
		ID:         id,
		Liquidity:  liquidity,
		Amount0Min: set.min0,
		Amount1Min: set.min1,
	})
	if err != nil {
		return nil, err
	}
	return liquidityOutput(res), nil
}

func (r *Runner) positionCollect(ctx context.Context, step Step) (Output, error) {
	id, err := r.position(step.Position)
	if err != nil {
		return nil, err
	}
	set, err := amounts(step)
	if err != nil {
		return nil, err
	}
	caller := r.account(step)
	amount0, amount1, err := r.engine.Positions.Collect(ctx, caller, positions.CollectParams{
		ID:         id,
		Recipient:  r.address(step.Recipient, caller),
		Amount0Max: set.desired0,
		Amount1Max: set.desired1,
	})
	if err != nil {
		return nil, err
	}
	return Output{"amount0": dec(amount0), "amount1": dec(amount1)}, nil
}

func (r *Runner) positionBurn(ctx context.Context, step Step) (Output, error) {
	id, err := r.position(step.Position)
	if err != nil {
		return nil, err
	}
	res, err := r.engine.Positions.Burn(ctx, r.account(step), id)
	if err != nil {
		return nil, err
	}
	return Output{"amount0": dec(res.Amount0), "amount1": dec(res.Amount1), "destroyed": strconv.FormatBool(res.Destroyed)}, nil
}

func (r *Runner) positionTransfer(_ context.Context, step Step) (Output, error) {
	id, err := r.position(step.Position)
	if err != nil {
		return nil, err
	}
	caller := r.account(step)
	to := r.address(step.To, common.Address{})
	if err := r.engine.Positions.TransferFrom(caller, r.address(step.From, caller), to, id); err != nil {
		return nil, err
	}
	return Output{"owner": to.Hex()}, nil
}

func (r *Runner) positionApprove(_ context.Context, step Step) (Output, error) {
	caller := r.account(step)
	if step.Operator != "" {
		operator := r.address(step.Operator, common.Address{})
		if err := r.engine.Positions.SetApprovalForAll(caller, operator, step.Approved); err != nil {
			return nil, err
		}
		return Output{"operator": operator.Hex(), "approved": strconv.FormatBool(step.Approved)}, nil
	}
	id, err := r.position(step.Position)
	if err != nil {
		return nil, err
	}
	spender := r.address(step.Spender, common.Address{})
	if err := r.engine.Positions.Approve(caller, spender, id); err != nil {
		return nil, err
	}
	return Output{"approved": spender.Hex()}, nil
}
