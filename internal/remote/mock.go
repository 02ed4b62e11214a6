package remote

import (
	"context"
	"sync"

	"github.com/MonteBryce/fieldsync/internal/models"
)

// MockStore provides an in-memory remote store for testing. Failures can
// be scripted per document path or globally for the next N calls.
type MockStore struct {
	mu   sync.Mutex
	docs map[string]map[string]any

	// failNext makes the next N writes fail with failErr.
	failNext int
	failErr  error

	// pathErrs fails every call touching a specific path.
	pathErrs map[string]error

	// MergeCalls records every SetWithMerge in order, for assertions.
	MergeCalls []MergeCall

	// MergeHook, when set, runs at the start of every SetWithMerge,
	// outside the store lock. Tests use it to block a drain mid-flight.
	MergeHook func(path string)
}

// MergeCall is one recorded SetWithMerge invocation.
type MergeCall struct {
	Path   string
	Fields map[string]any
}

// NewMockStore creates an empty mock remote store.
func NewMockStore() *MockStore {
	return &MockStore{
		docs:     make(map[string]map[string]any),
		pathErrs: make(map[string]error),
	}
}

// FailNext scripts the next n calls to fail with err.
func (m *MockStore) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failErr = err
}

// FailPath scripts every call for path to fail with err.
func (m *MockStore) FailPath(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pathErrs[path] = err
}

// Unreachable builds a transient failure for scripting.
func Unreachable(msg string) error {
	return &models.RemoteError{Code: models.ErrCodeUnreachable, Message: msg}
}

// Rejected builds a permanent failure for scripting.
func Rejected(msg string) error {
	return &models.RemoteError{Code: models.ErrCodeRejected, StatusCode: 400, Message: msg}
}

// Get returns the stored document fields.
func (m *MockStore) Get(ctx context.Context, path string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.scriptedErr(path); err != nil {
		return nil, err
	}

	doc, ok := m.docs[path]
	if !ok {
		return nil, ErrDocNotFound
	}
	return copyFields(doc), nil
}

// SetWithMerge merges fields into the document at path.
func (m *MockStore) SetWithMerge(ctx context.Context, path string, fields map[string]any) error {
	if m.MergeHook != nil {
		m.MergeHook(path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.scriptedErr(path); err != nil {
		return err
	}

	doc, ok := m.docs[path]
	if !ok {
		doc = make(map[string]any)
		m.docs[path] = doc
	}
	for k, v := range fields {
		doc[k] = v
	}

	m.MergeCalls = append(m.MergeCalls, MergeCall{Path: path, Fields: copyFields(fields)})
	return nil
}

// Doc returns a copy of the stored document, or nil if absent.
func (m *MockStore) Doc(path string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[path]
	if !ok {
		return nil
	}
	return copyFields(doc)
}

// DocCount returns how many documents the store holds.
func (m *MockStore) DocCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *MockStore) scriptedErr(path string) error {
	if err, ok := m.pathErrs[path]; ok {
		return err
	}
	if m.failNext > 0 {
		m.failNext--
		return m.failErr
	}
	return nil
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
