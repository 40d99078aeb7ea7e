package storage

import (
	"sync"

	"rangeAMM/internal/model"
)

// MemoryStorage keeps log records in memory, mostly for tests and simulations.
type MemoryStorage struct {
	mu   sync.Mutex
	logs []model.LogRecord
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) PutLogBatch(logs []model.LogRecord) error {
	s.mu.Lock()
	s.logs = append(s.logs, logs...)
	s.mu.Unlock()
	return nil
}

// Logs returns a copy of everything stored so far.
func (s *MemoryStorage) Logs() []model.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LogRecord, len(s.logs))
	copy(out, s.logs)
	return out
}

// Reset drops every stored record.
func (s *MemoryStorage) Reset() {
	s.mu.Lock()
	s.logs = nil
	s.mu.Unlock()
}
