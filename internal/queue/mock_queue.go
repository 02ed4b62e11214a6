package queue

import (
	"sync"
	"time"

	"github.com/MonteBryce/fieldsync/internal/models"
)

// MockQueue provides an in-memory implementation for testing.
type MockQueue struct {
	mu      sync.Mutex
	entries []*models.QueueEntry
	backoff Backoff

	// EnqueueErr forces the next Enqueue to fail, for rollback tests.
	EnqueueErr error
}

// NewMockQueue creates a mock sync queue.
func NewMockQueue() *MockQueue {
	return &MockQueue{backoff: DefaultBackoff()}
}

// SetBackoff overrides the retry backoff, letting tests retry immediately.
func (m *MockQueue) SetBackoff(b Backoff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backoff = b
}

// Enqueue appends a copy of the entry.
func (m *MockQueue) Enqueue(entry *models.QueueEntry) (string, error) {
	if m.EnqueueErr != nil {
		err := m.EnqueueErr
		m.EnqueueErr = nil
		return "", err
	}
	if err := entry.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry.Clone())
	return entry.ID, nil
}

// DequeueReady returns eligible entries in enqueue order.
func (m *MockQueue) DequeueReady(now time.Time) ([]*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]*models.QueueEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.Rejected {
			pending = append(pending, e.Clone())
		}
	}
	return filterReady(pending, now, m.backoff), nil
}

// MarkSucceeded removes the entry.
func (m *MockQueue) MarkSucceeded(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return models.ErrEntryNotFound
}

// MarkFailed records a transient failure.
func (m *MockQueue) MarkFailed(id string, attemptErr error) error {
	return m.recordFailure(id, attemptErr, false)
}

// MarkRejected records a permanent failure.
func (m *MockQueue) MarkRejected(id string, attemptErr error) error {
	return m.recordFailure(id, attemptErr, true)
}

func (m *MockQueue) recordFailure(id string, attemptErr error, rejected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.ID == id {
			e.RetryCount++
			if attemptErr != nil {
				e.LastError = attemptErr.Error()
			}
			now := time.Now().UTC()
			e.LastAttempt = &now
			e.Rejected = rejected
			return nil
		}
	}
	return models.ErrEntryNotFound
}

// Entries returns copies of all queued entries.
func (m *MockQueue) Entries() ([]*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.QueueEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Clone())
	}
	return out, nil
}

// PurgeRejected removes non-retryable entries.
func (m *MockQueue) PurgeRejected() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	purged := 0
	for _, e := range m.entries {
		if e.Rejected {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return purged, nil
}

// Close is a no-op.
func (m *MockQueue) Close() error {
	return nil
}
