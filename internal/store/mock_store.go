package store

import (
	"sort"
	"sync"
	"time"

	"github.com/MonteBryce/fieldsync/internal/models"
)

// MockStore provides an in-memory implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	records map[string]*models.Record

	// PutErr forces the next Put to fail, for rollback tests.
	PutErr error
}

// NewMockStore creates a mock record store.
func NewMockStore() *MockStore {
	return &MockStore{
		records: make(map[string]*models.Record),
	}
}

// Put stores a copy of the record.
func (m *MockStore) Put(record *models.Record) error {
	if m.PutErr != nil {
		err := m.PutErr
		m.PutErr = nil
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record.Clone()
	return nil
}

// Get returns a copy of the stored record.
func (m *MockStore) Get(id string) (*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if record, ok := m.records[id]; ok {
		return record.Clone(), nil
	}
	return nil, models.ErrRecordNotFound
}

// Scan returns matching records, newest first.
func (m *MockStore) Scan(filter Filter) ([]*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Record
	for _, record := range m.records {
		if filter.ProjectID != "" && record.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Kind != "" && record.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.UnsyncedOnly && record.Synced {
			continue
		}
		out = append(out, record.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete removes a record; absence is a no-op.
func (m *MockStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// MarkSynced flips the synced flag on the stored record.
func (m *MockStore) MarkSynced(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return models.ErrRecordNotFound
	}
	record.MarkSynced(at)
	return nil
}

// MarkSyncFailed stores the failure on the record.
func (m *MockStore) MarkSyncFailed(id string, syncErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok {
		return models.ErrRecordNotFound
	}
	record.MarkSyncFailed(syncErr)
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
