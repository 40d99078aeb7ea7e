package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"rangeAMM/internal/model"
)

// Accumulator holds the activity of one pool over one window.
type Accumulator struct {
	ChainID     uint64
	PoolAddress string
	PoolMeta    model.PoolMeta
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	Volume0     *big.Int
	Volume1     *big.Int
	Fee0        *big.Int
	Fee1        *big.Int
	FirstSeq    uint64
	LastSeq     uint64
	LastTS      uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:     record.ChainID,
		PoolAddress: record.Address,
		PoolMeta:    record.PoolMeta,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume0:     big.NewInt(0),
		Volume1:     big.NewInt(0),
		Fee0:        big.NewInt(0),
		Fee1:        big.NewInt(0),
		FirstSeq:    record.BlockNumber,
		LastSeq:     record.BlockNumber,
		LastTS:      record.Timestamp,
	}
}

// AddEvent folds one pool event into the window. Only swaps add volume and fees.
func (a *Accumulator) AddEvent(record model.TypedEventRecord, effect Effect) {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastSeq = record.BlockNumber
	}
	if record.BlockNumber < a.FirstSeq {
		a.FirstSeq = record.BlockNumber
	}
	if a.PoolMeta.Token0 == "" && record.PoolMeta.Token0 != "" {
		a.PoolMeta = record.PoolMeta
	}
	if effect.Swap {
		a.applySwap(effect.Amount0, effect.Amount1)
	}
}

func (a *Accumulator) applySwap(amount0, amount1 *big.Int) {
	absAdd(a.Volume0, amount0)
	absAdd(a.Volume1, amount1)
	a.SwapCount++

	feeRate := a.PoolMeta.Fee
	if feeRate == 0 {
		return
	}
	// The positive side is what the pool received.
	if amount0.Sign() > 0 {
		a.Fee0.Add(a.Fee0, feeFromAmount(amount0, feeRate))
	} else if amount1.Sign() > 0 {
		a.Fee1.Add(a.Fee1, feeFromAmount(amount1, feeRate))
	}
}

// Effect is what a pool notification does to the pool's balances, signed from the
// pool's point of view.
type Effect struct {
	Swap         bool
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
}

// ParseEffect reads the balance movement of a pool event. Events that move no tokens
// return a zero effect.
func ParseEffect(record model.TypedEventRecord) (Effect, error) {
	effect := Effect{Amount0: big.NewInt(0), Amount1: big.NewInt(0)}
	switch record.EventName {
	case model.EventSwap:
		var swap model.SwapEventData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return Effect{}, fmt.Errorf("decode swap: %w", err)
		}
		return amountsEffect(true, swap.Amount0, swap.Amount1, swap.SqrtPriceX96, false)
	case model.EventMint:
		var mint model.MintEventData
		if err := json.Unmarshal(record.Decoded, &mint); err != nil {
			return Effect{}, fmt.Errorf("decode mint: %w", err)
		}
		return amountsEffect(false, mint.Amount0, mint.Amount1, "", false)
	case model.EventCollect:
		var collect model.CollectEventData
		if err := json.Unmarshal(record.Decoded, &collect); err != nil {
			return Effect{}, fmt.Errorf("decode collect: %w", err)
		}
		return amountsEffect(false, collect.Amount0, collect.Amount1, "", true)
	case model.EventInitialize:
		var init model.InitializeEventData
		if err := json.Unmarshal(record.Decoded, &init); err != nil {
			return Effect{}, fmt.Errorf("decode initialize: %w", err)
		}
		price, err := parseBigInt(init.SqrtPriceX96)
		if err != nil {
			return Effect{}, err
		}
		effect.SqrtPriceX96 = price
	}
	return effect, nil
}

func amountsEffect(swap bool, amount0, amount1, sqrtPrice string, outflow bool) (Effect, error) {
	a0, err := parseBigInt(amount0)
	if err != nil {
		return Effect{}, err
	}
	a1, err := parseBigInt(amount1)
	if err != nil {
		return Effect{}, err
	}
	if outflow {
		a0.Neg(a0)
		a1.Neg(a1)
	}
	effect := Effect{Swap: swap, Amount0: a0, Amount1: a1}
	if sqrtPrice != "" {
		if effect.SqrtPriceX96, err = parseBigInt(sqrtPrice); err != nil {
			return Effect{}, err
		}
	}
	return effect, nil
}

// Reserves is a pool's running token balance reconstructed from its notifications.
// It is only trustworthy when the pool's creation was part of the scanned journal.
type Reserves struct {
	Token0       *big.Int
	Token1       *big.Int
	SqrtPriceX96 *big.Int
	Tracked      bool
}

func newReserves(tracked bool) *Reserves {
	return &Reserves{Token0: big.NewInt(0), Token1: big.NewInt(0), Tracked: tracked}
}

func (r *Reserves) apply(effect Effect) {
	r.Token0.Add(r.Token0, effect.Amount0)
	r.Token1.Add(r.Token1, effect.Amount1)
	if effect.SqrtPriceX96 != nil {
		r.SqrtPriceX96 = new(big.Int).Set(effect.SqrtPriceX96)
	}
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func absAdd(target *big.Int, value *big.Int) {
	if value == nil || target == nil {
		return
	}
	target.Add(target, new(big.Int).Abs(value))
}

// feeFromAmount approximates the fee charged on amountIn from the pool's fee tier.
func feeFromAmount(amountIn *big.Int, feeRate uint32) *big.Int {
	if amountIn == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Abs(amountIn)
	fee.Mul(fee, big.NewInt(int64(feeRate)))
	fee.Div(fee, big.NewInt(1_000_000))
	return fee
}
