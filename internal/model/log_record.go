package model

// LogRecord is an EVM-style log: either a notification published by the engine or a log
// fetched from a live chain. Engine records use BlockNumber as the commit sequence.
type LogRecord struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	TxHash      string   `json:"tx_hash,omitempty"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Timestamp   uint64   `json:"timestamp"`
	Source      string   `json:"source"`
	RecordedAt  string   `json:"recorded_at"`
}

const (
	SourceEngine = "engine"
	SourceChain  = "chain"
)

// Topic0 returns the event signature topic, or "" for anonymous records.
func (lr LogRecord) Topic0() string {
	if len(lr.Topics) == 0 {
		return ""
	}
	return lr.Topics[0]
}

// DecodeError records a log line that could not be decoded.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Error       string `json:"error"`
}
