package aggregate

import (
	"context"
	"time"

	"rangeAMM/internal/storage"
	"rangeAMM/internal/storage/postgres"
)

// StateStore persists the timestamp up to which windows are final.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, ts uint64) error
}

// FileStateStore keeps state in a local JSON file. An empty Path disables it.
type FileStateStore struct {
	Path  string
	clock func() time.Time
}

func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{Path: path, clock: time.Now}
}

type stateRecord struct {
	LastProcessed uint64 `json:"last_processed_ts"`
	UpdatedAt     string `json:"updated_at"`
}

func (s *FileStateStore) Load(_ context.Context) (uint64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	var rec stateRecord
	ok, err := storage.ReadJSONFile(s.Path, &rec)
	if err != nil || !ok {
		return 0, false, err
	}
	return rec.LastProcessed, true, nil
}

func (s *FileStateStore) Save(_ context.Context, ts uint64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	now := time.Now
	if s.clock != nil {
		now = s.clock
	}
	return storage.WriteJSONFile(s.Path, stateRecord{LastProcessed: ts, UpdatedAt: now().UTC().Format(time.RFC3339Nano)})
}

// DBStateStore keeps state in the engine_state table under Name.
type DBStateStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Store == nil {
		return 0, false, nil
	}
	return s.Store.LoadState(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, ts)
}
