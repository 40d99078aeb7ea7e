package fixedpoint

import "github.com/holiman/uint256"

const (
	// MinTick is the lowest tick whose sqrt ratio is representable.
	MinTick int32 = -887272
	// MaxTick is the highest tick whose sqrt ratio is representable.
	MaxTick int32 = 887272

	// FeeDenominator expresses fee tiers in parts per million.
	FeeDenominator = 1_000_000

	resolution = 96
)

var (
	// MinSqrtRatio is GetSqrtRatioAtTick(MinTick).
	MinSqrtRatio = uint256.NewInt(4295128739)
	// MaxSqrtRatio is GetSqrtRatioAtTick(MaxTick).
	MaxSqrtRatio = uint256.MustFromHex("0xfffd8963efd1fc6a506488495d951d5263988d26")

	Q96  = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	Q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	MaxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	MaxUint160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))
	MaxInt256  = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 255), uint256.NewInt(1))
	MaxUint256 = new(uint256.Int).Not(new(uint256.Int))

	one = uint256.NewInt(1)
)
