package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/MonteBryce/fieldsync/internal/models"
)

// MockRepository provides an in-memory implementation for testing.
type MockRepository struct {
	mu          sync.RWMutex
	checkpoints map[string]*models.Checkpoint

	// SaveErr forces the next Save to fail.
	SaveErr error
}

// NewMockRepository creates a mock checkpoint repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		checkpoints: make(map[string]*models.Checkpoint),
	}
}

// Save stores a copy of the checkpoint.
func (m *MockRepository) Save(ctx context.Context, cp *models.Checkpoint) error {
	if m.SaveErr != nil {
		err := m.SaveErr
		m.SaveErr = nil
		return err
	}
	if err := cp.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.ID] = cp.Clone()
	return nil
}

// Load returns a copy of the stored checkpoint.
func (m *MockRepository) Load(ctx context.Context, id string) (*models.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if cp, ok := m.checkpoints[id]; ok {
		return cp.Clone(), nil
	}
	return nil, models.ErrCheckpointNotFound
}

// List returns all checkpoints, newest first.
func (m *MockRepository) List(ctx context.Context) ([]*models.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Checkpoint, 0, len(m.checkpoints))
	for _, cp := range m.checkpoints {
		out = append(out, cp.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

// Delete removes a checkpoint; absence is a no-op.
func (m *MockRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, id)
	return nil
}

// Close is a no-op.
func (m *MockRepository) Close() error {
	return nil
}
