package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"rangeAMM/internal/model"
)

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolState is the mutable part of a live pool at some block.
type PoolState struct {
	Liquidity string
	Slot0     *model.PoolSlot0
}

// LiveReader reads pool and token metadata from a chain.
type LiveReader struct {
	caller ContractCaller
	tokens *TokenMetaCache
	logger *zap.Logger
}

func NewLiveReader(caller ContractCaller, tokens *TokenMetaCache, logger *zap.Logger) *LiveReader {
	if tokens == nil {
		tokens = NewTokenMetaCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveReader{caller: caller, tokens: tokens, logger: logger}
}

func (r *LiveReader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	if r == nil || r.caller == nil {
		return nil, fmt.Errorf("no contract caller")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned nothing", method)
	}
	return values, nil
}

// PoolMeta loads the immutable fields of a live V3 pool and warms the token cache.
func (r *LiveReader) PoolMeta(ctx context.Context, pool common.Address) (model.PoolMeta, error) {
	parsed, err := poolABI.get()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	fields := make(map[string]interface{}, 4)
	for _, method := range []string{"token0", "token1", "fee", "tickSpacing"} {
		values, err := r.call(ctx, pool, parsed, method, nil)
		if err != nil {
			return model.PoolMeta{}, err
		}
		fields[method] = values[0]
	}

	reader := &valueReader{values: fields}
	meta := model.PoolMeta{
		Token0:      reader.address("token0"),
		Token1:      reader.address("token1"),
		Fee:         reader.uint24("fee"),
		TickSpacing: reader.int24("tickSpacing"),
	}
	if reader.err != nil {
		return model.PoolMeta{}, reader.err
	}

	for _, token := range []string{meta.Token0, meta.Token1} {
		if _, err := r.TokenMeta(ctx, common.HexToAddress(token)); err != nil {
			r.logger.Warn("token metadata fetch failed", zap.String("token", token), zap.Error(err))
		}
	}
	return meta, nil
}

// PoolState loads liquidity and slot0 at blockNumber, or at the head when it is zero.
// Fields that cannot be read are left empty.
func (r *LiveReader) PoolState(ctx context.Context, pool common.Address, blockNumber uint64) (PoolState, error) {
	parsed, err := poolABI.get()
	if err != nil {
		return PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}

	var state PoolState
	if values, err := r.call(ctx, pool, parsed, "liquidity", block); err == nil {
		if liq, err := asBigInt(values[0]); err == nil {
			state.Liquidity = liq.String()
		}
	} else {
		r.logger.Debug("liquidity call failed", zap.String("pool", pool.Hex()), zap.Error(err))
	}

	if values, err := r.call(ctx, pool, parsed, "slot0", block); err == nil && len(values) >= 2 {
		reader := &valueReader{values: map[string]interface{}{"sqrtPriceX96": values[0], "tick": values[1]}}
		slot0 := &model.PoolSlot0{SqrtPriceX96: reader.text("sqrtPriceX96"), Tick: reader.int24("tick")}
		if reader.err == nil {
			state.Slot0 = slot0
		}
	} else if err != nil {
		r.logger.Debug("slot0 call failed", zap.String("pool", pool.Hex()), zap.Error(err))
	}

	if state.Liquidity == "" && state.Slot0 == nil {
		return state, fmt.Errorf("pool %s has no readable state", pool.Hex())
	}
	return state, nil
}

// TokenMeta loads ERC20 metadata, falling back to bytes32 symbol and name. Results
// are cached even when only decimals could be read.
func (r *LiveReader) TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	if meta, ok := r.tokens.Get(token); ok {
		return meta, nil
	}

	stringABI, err := erc20ABI.get()
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32ABI.get()
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	meta := model.TokenMeta{Address: token.Hex()}
	values, err := r.call(ctx, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals: unsupported type %T", values[0])
	}
	meta.Decimals = decimals

	text := func(method string) string {
		if values, err := r.call(ctx, token, stringABI, method, nil); err == nil {
			if s, ok := values[0].(string); ok {
				return s
			}
		}
		if values, err := r.call(ctx, token, bytes32ABI, method, nil); err == nil {
			if s, ok := bytes32ToString(values[0]); ok {
				return s
			}
		} else {
			r.logger.Debug(method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
		}
		return ""
	}
	meta.Symbol = text("symbol")
	meta.Name = text("name")

	r.tokens.Set(token, meta)
	return meta, nil
}

// BalanceOf reads an ERC20 balance at blockNumber, or at the head when it is zero.
func (r *LiveReader) BalanceOf(ctx context.Context, token, account common.Address, blockNumber uint64) (*big.Int, error) {
	parsed, err := erc20ABI.get()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}
	values, err := r.call(ctx, token, parsed, "balanceOf", block, account)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}
