package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/aurum/internal/models"
)

// ErrCheckpointCorrupt is returned when the progress file exists but cannot be used
var ErrCheckpointCorrupt = errors.New("backfill checkpoint is corrupt")

const checkpointDateLayout = "2006-01-02"

// CheckpointStore persists backfill progress to a JSON file
type CheckpointStore struct {
	path string
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Path returns the checkpoint file location
func (c *CheckpointStore) Path() string {
	return c.path
}

// Load returns nil with no error when no checkpoint has been written yet
func (c *CheckpointStore) Load() (*models.PipelineCheckpoint, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCheckpointCorrupt, c.path, err)
	}

	var cp models.PipelineCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCheckpointCorrupt, c.path, err)
	}
	if cp.LastProcessedDate != "" {
		if _, err := time.Parse(checkpointDateLayout, cp.LastProcessedDate); err != nil {
			return nil, fmt.Errorf("%w: %s: invalid last_date %q", ErrCheckpointCorrupt, c.path, cp.LastProcessedDate)
		}
	}
	return &cp, nil
}

// Save writes the checkpoint through a synced temp file and a rename, so a
// crash leaves either the old or the new file in place
func (c *CheckpointStore) Save(cp *models.PipelineCheckpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}
