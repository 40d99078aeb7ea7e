package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestLogRecordJSONRoundTrip(t *testing.T) {
	original := LogRecord{
		ChainID:     31337,
		BlockNumber: 42,
		LogIndex:    3,
		Address:     "0x1111111111111111111111111111111111111111",
		Topics:      []string{"0xaaa", "0xbbb"},
		Data:        "0xdeadbeef",
		Timestamp:   1700000000,
		Source:      SourceEngine,
		RecordedAt:  "2024-01-01T00:00:00Z",
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded LogRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
	if decoded.Topic0() != "0xaaa" {
		t.Fatalf("topic0 mismatch: %s", decoded.Topic0())
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if _, ok := raw["tx_hash"]; ok {
		t.Fatalf("empty tx hash should be omitted")
	}
}

func TestTopic0Empty(t *testing.T) {
	if (LogRecord{}).Topic0() != "" {
		t.Fatalf("record without topics has no topic0")
	}
}
