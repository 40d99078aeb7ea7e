package fixedpoint

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestComputeSwapStepExactInPartial(t *testing.T) {
	target, err := GetSqrtRatioAtTick(-60)
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}

	step, err := ComputeSwapStep(Q96, target, uint256.NewInt(1_000_000), uint256.NewInt(1000), true, 3000)
	if err != nil {
		t.Fatalf("compute step: %v", err)
	}

	consumed := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
	if consumed.Uint64() != 1000 {
		t.Fatalf("exact input must be fully consumed, got %d", consumed.Uint64())
	}
	if !step.SqrtRatioNextX96.Lt(Q96) || !step.SqrtRatioNextX96.Gt(target) {
		t.Fatalf("next price should land strictly inside (target, current)")
	}
	if step.AmountOut.IsZero() || step.AmountOut.Uint64() >= 1000 {
		t.Fatalf("unexpected amount out: %d", step.AmountOut.Uint64())
	}
	if step.FeeAmount.Uint64() < 3 {
		t.Fatalf("fee should be at least 0.3%% of the input, got %d", step.FeeAmount.Uint64())
	}
}

func TestComputeSwapStepReachesTarget(t *testing.T) {
	target, err := GetSqrtRatioAtTick(60)
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}

	step, err := ComputeSwapStep(Q96, target, uint256.NewInt(1_000_000), uint256.NewInt(1_000_000_000), true, 3000)
	if err != nil {
		t.Fatalf("compute step: %v", err)
	}
	if !step.SqrtRatioNextX96.Eq(target) {
		t.Fatalf("large input should stop at the target")
	}
	consumed := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
	if consumed.Uint64() >= 1_000_000_000 {
		t.Fatalf("capped step should leave input unconsumed")
	}
}

func TestComputeSwapStepExactOutCapped(t *testing.T) {
	target, err := GetSqrtRatioAtTick(-60)
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}

	step, err := ComputeSwapStep(Q96, target, uint256.NewInt(1_000_000), uint256.NewInt(500), false, 3000)
	if err != nil {
		t.Fatalf("compute step: %v", err)
	}
	if step.AmountOut.Uint64() != 500 {
		t.Fatalf("exact output mismatch: %d", step.AmountOut.Uint64())
	}
	if step.AmountIn.Uint64() < 500 {
		t.Fatalf("input should exceed output near price 1: %d", step.AmountIn.Uint64())
	}
}
