package replay

import (
	"strings"
	"time"

	"rangeAMM/internal/storage"
)

// Checkpoint records how far the swap history of a pool has been fetched.
type Checkpoint struct {
	Pool               string `json:"pool"`
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// CheckpointStore keeps one checkpoint in a JSON file. A disabled store never loads or saves.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled && path != ""}
}

// Load returns the checkpoint for pool. A checkpoint written for another pool is ignored.
func (c *CheckpointStore) Load(pool string) (Checkpoint, bool, error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}
	var cp Checkpoint
	ok, err := storage.ReadJSONFile(c.path, &cp)
	if err != nil || !ok {
		return Checkpoint{}, false, err
	}
	if !strings.EqualFold(cp.Pool, pool) {
		return Checkpoint{}, false, nil
	}
	return cp, true, nil
}

func (c *CheckpointStore) Save(pool string, lastProcessed uint64) error {
	if !c.enabled {
		return nil
	}
	return storage.WriteJSONFile(c.path, Checkpoint{
		Pool:               pool,
		LastProcessedBlock: lastProcessed,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	})
}
