package runtime

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/isobar/iox"
)

// ErrNoCheckpoint is returned by LoadCheckpoint when no checkpoint exists.
var ErrNoCheckpoint = errors.New("no checkpoint")

// ErrCheckpointMismatch is returned when a checkpoint belongs to another experiment.
var ErrCheckpointMismatch = errors.New("checkpoint belongs to a different experiment")

// Checkpoint marks the last run that completed successfully.
type Checkpoint struct {
	Experiment    string    `msgpack:"experiment"`
	LastCompleted int       `msgpack:"last_completed"`
	Total         int       `msgpack:"total"`
	UpdatedAt     time.Time `msgpack:"updated_at"`
}

// LoadCheckpoint reads the checkpoint at path.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := msgpack.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	return &cp, nil
}

// SaveCheckpoint writes cp to path atomically.
func SaveCheckpoint(path string, cp *Checkpoint) error {
	data, err := msgpack.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := iox.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// RemoveCheckpoint deletes the checkpoint at path if present.
func RemoveCheckpoint(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	return nil
}
