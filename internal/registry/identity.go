package registry

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolInitCodeHash stands in for the pool bytecode hash in CREATE2 derivation.
var PoolInitCodeHash = crypto.Keccak256Hash([]byte("rangeAMM.Pool"))

var saltArguments = func() abi.Arguments {
	mustType := func(name string) abi.Type {
		t, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(err)
		}
		return t
	}
	return abi.Arguments{
		{Type: mustType("address")},
		{Type: mustType("address")},
		{Type: mustType("int24")},
		{Type: mustType("int24")},
		{Type: mustType("uint24")},
	}
}()

// SortTokens returns the pair in canonical order.
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, common.Address{}, ErrIdenticalTokens
	}
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		tokenA, tokenB = tokenB, tokenA
	}
	if tokenA == (common.Address{}) {
		return common.Address{}, common.Address{}, ErrZeroToken
	}
	return tokenA, tokenB, nil
}

// PoolSalt is keccak256(abi.encode(token0, token1, tickLower, tickUpper, fee)) over the
// canonically ordered pair.
func PoolSalt(tokenA, tokenB common.Address, tickLower, tickUpper int32, fee uint32) (common.Hash, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Hash{}, err
	}
	encoded, err := saltArguments.Pack(token0, token1, big.NewInt(int64(tickLower)), big.NewInt(int64(tickUpper)), new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode salt: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// ComputePoolAddress derives a pool's identity from its parameters alone, so it can be
// computed without asking the registry.
func ComputePoolAddress(deployer, tokenA, tokenB common.Address, tickLower, tickUpper int32, fee uint32) (common.Address, error) {
	salt, err := PoolSalt(tokenA, tokenB, tickLower, tickUpper, fee)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.CreateAddress2(deployer, salt, PoolInitCodeHash.Bytes()), nil
}
