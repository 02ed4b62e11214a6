// Package checkpoint tracks bulk-sync jobs as named, resumable units. The
// manager enforces progress invariants; durability lives behind an injected
// Repository so checkpoints survive process restarts and tests need no
// shared global state.
package checkpoint

import (
	"context"

	"github.com/MonteBryce/fieldsync/internal/models"
)

// Repository provides persistent storage for checkpoints.
type Repository interface {
	// Save persists a checkpoint for later retrieval.
	Save(ctx context.Context, cp *models.Checkpoint) error

	// Load returns a checkpoint or models.ErrCheckpointNotFound.
	Load(ctx context.Context, id string) (*models.Checkpoint, error)

	// List returns all stored checkpoints, newest first.
	List(ctx context.Context) ([]*models.Checkpoint, error)

	// Delete removes a checkpoint. Absence is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}
