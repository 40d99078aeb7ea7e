package model

import (
	"encoding/json"
	"testing"
)

func TestSwapEventDataJSONStringFields(t *testing.T) {
	payload := SwapEventData{
		Sender:       "0x1111111111111111111111111111111111111111",
		Recipient:    "0x2222222222222222222222222222222222222222",
		Amount0:      "12345678901234567890",
		Amount1:      "-42",
		SqrtPriceX96: "79228162514264337593543950336",
		Liquidity:    "5000000000000000000",
		Tick:         10,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"amount0", "amount1", "sqrt_price_x96", "liquidity"} {
		if _, ok := decoded[key].(string); !ok {
			t.Fatalf("%s should be string", key)
		}
	}
}

func TestPoolCreatedEventDataRangeFields(t *testing.T) {
	data, err := json.Marshal(PoolCreatedEventData{TickLower: -60, TickUpper: 60, Fee: 3000})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["tick_lower"].(float64) != -60 || decoded["tick_upper"].(float64) != 60 {
		t.Fatalf("range fields mismatch: %v", decoded)
	}
}
