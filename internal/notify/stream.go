// Package notify turns engine state changes into EVM-style log records and ships them
// to storage sinks once the enclosing operation commits.
package notify

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"rangeAMM/internal/dex"
	"rangeAMM/internal/model"
	"rangeAMM/internal/storage"
	"rangeAMM/internal/txn"
)

// Publisher accepts notifications. Publishing inside an open snapshot defers delivery
// until the outermost snapshot is discarded; reverting drops them.
type Publisher interface {
	txn.Revertible
	Publish(emitter common.Address, name string, payload interface{}) error
}

// Stream is the Publisher used by the engine.
type Stream struct {
	journal txn.Journal
	encoder *dex.Encoder
	sinks   []storage.Storage
	chainID uint64
	clock   func() time.Time
	logger  *zap.Logger

	pending []model.LogRecord
	seq     uint64
}

type Option func(*Stream)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Stream) { s.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Stream) { s.logger = logger }
}

func NewStream(chainID uint64, sinks []storage.Storage, opts ...Option) (*Stream, error) {
	encoder, err := dex.NewEncoder()
	if err != nil {
		return nil, fmt.Errorf("notify encoder: %w", err)
	}
	s := &Stream{
		encoder: encoder,
		sinks:   sinks,
		chainID: chainID,
		clock:   time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Publish encodes a payload and queues it for delivery.
func (s *Stream) Publish(emitter common.Address, name string, payload interface{}) error {
	topics, data, err := s.encoder.Encode(name, payload)
	if err != nil {
		return err
	}
	record := model.LogRecord{
		ChainID: s.chainID,
		Address: emitter.Hex(),
		Topics:  make([]string, 0, len(topics)),
		Data:    hexutil.Encode(data),
		Source:  model.SourceEngine,
	}
	for _, topic := range topics {
		record.Topics = append(record.Topics, topic.Hex())
	}

	n := len(s.pending)
	s.journal.Append(func() { s.pending = s.pending[:n] })
	s.pending = append(s.pending, record)

	if !s.journal.Open() {
		s.flush()
	}
	return nil
}

// Seq returns the sequence number of the last delivered batch.
func (s *Stream) Seq() uint64 { return s.seq }

func (s *Stream) Snapshot() int           { return s.journal.Snapshot() }
func (s *Stream) RevertToSnapshot(id int) { s.journal.RevertToSnapshot(id) }

func (s *Stream) DiscardSnapshot(id int) {
	s.journal.DiscardSnapshot(id)
	if !s.journal.Open() {
		s.flush()
	}
}

func (s *Stream) flush() {
	if len(s.pending) == 0 {
		return
	}
	s.seq++
	now := s.clock()
	batch := s.pending
	s.pending = nil
	for i := range batch {
		batch[i].BlockNumber = s.seq
		batch[i].LogIndex = uint64(i)
		batch[i].Timestamp = uint64(now.Unix())
		batch[i].RecordedAt = now.UTC().Format(time.RFC3339Nano)
	}
	for _, sink := range s.sinks {
		if err := sink.PutLogBatch(batch); err != nil {
			s.logger.Warn("notification sink failed",
				zap.Uint64("seq", s.seq),
				zap.Int("logs", len(batch)),
				zap.Error(err),
			)
		}
	}
	s.logger.Debug("notifications delivered", zap.Uint64("seq", s.seq), zap.Int("logs", len(batch)))
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(common.Address, string, interface{}) error { return nil }
func (Discard) Snapshot() int                                     { return 0 }
func (Discard) RevertToSnapshot(int)                              {}
func (Discard) DiscardSnapshot(int)                               {}
