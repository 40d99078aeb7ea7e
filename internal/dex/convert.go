package dex

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func parseBig(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return parsed, nil
}

func parseAddress(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid address %q", value)
	}
	return common.HexToAddress(value), nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	if value.Cmp(big.NewInt(-1<<23)) < 0 || value.Cmp(big.NewInt(1<<23-1)) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value)
	}
	return int32(value.Int64()), nil
}

func uint24FromBig(value *big.Int) (uint32, error) {
	if value.Sign() < 0 || value.Cmp(big.NewInt(1<<24-1)) > 0 {
		return 0, fmt.Errorf("uint24 overflow: %s", value)
	}
	return uint32(value.Uint64()), nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

// valueReader pulls typed fields out of an unpacked event map, remembering the first error.
type valueReader struct {
	values map[string]interface{}
	err    error
}

func (r *valueReader) big(name string) *big.Int {
	if r.err != nil {
		return nil
	}
	v, err := asBigInt(r.values[name])
	if err != nil {
		r.err = fmt.Errorf("%s: %w", name, err)
		return nil
	}
	return v
}

func (r *valueReader) text(name string) string {
	v := r.big(name)
	if v == nil {
		return ""
	}
	return v.String()
}

func (r *valueReader) address(name string) string {
	if r.err != nil {
		return ""
	}
	v, err := asAddress(r.values[name])
	if err != nil {
		r.err = fmt.Errorf("%s: %w", name, err)
		return ""
	}
	return v.Hex()
}

func (r *valueReader) int24(name string) int32 {
	v := r.big(name)
	if v == nil {
		return 0
	}
	tick, err := int24FromBig(v)
	if err != nil {
		r.err = fmt.Errorf("%s: %w", name, err)
	}
	return tick
}

func (r *valueReader) uint24(name string) uint32 {
	v := r.big(name)
	if v == nil {
		return 0
	}
	fee, err := uint24FromBig(v)
	if err != nil {
		r.err = fmt.Errorf("%s: %w", name, err)
	}
	return fee
}
