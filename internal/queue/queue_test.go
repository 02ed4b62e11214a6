package queue_test

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
	"github.com/MonteBryce/fieldsync/internal/queue"
)

func newSQLiteQueue(t *testing.T) *queue.SQLiteQueue {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	q, err := queue.NewSQLiteQueue(dbPath, queue.DefaultBackoff(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func entry(id, docID string, payload map[string]any) *models.QueueEntry {
	return &models.QueueEntry{
		ID:         id,
		Op:         models.OpUpdate,
		ProjectID:  "p1",
		LogID:      "log1",
		Collection: "entries",
		DocID:      docID,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestSQLiteQueue(t *testing.T) {
	testQueueOperations(t, func(t *testing.T) queue.Queue { return newSQLiteQueue(t) })
}

func TestMockQueue(t *testing.T) {
	testQueueOperations(t, func(t *testing.T) queue.Queue { return queue.NewMockQueue() })
}

func testQueueOperations(t *testing.T, newQueue func(t *testing.T) queue.Queue) {
	t.Run("enqueue and dequeue in order", func(t *testing.T) {
		q := newQueue(t)

		for i := 0; i < 3; i++ {
			_, err := q.Enqueue(entry(fmt.Sprintf("e-%d", i), fmt.Sprintf("doc-%d", i), map[string]any{"n": i}))
			require.NoError(t, err)
		}

		ready, err := q.DequeueReady(time.Now())
		require.NoError(t, err)
		require.Len(t, ready, 3)
		assert.Equal(t, "e-0", ready[0].ID)
		assert.Equal(t, "e-2", ready[2].ID)
	})

	t.Run("mark succeeded removes entry", func(t *testing.T) {
		q := newQueue(t)
		_, err := q.Enqueue(entry("e-1", "doc-1", map[string]any{"temp": 70}))
		require.NoError(t, err)

		require.NoError(t, q.MarkSucceeded("e-1"))

		entries, err := q.Entries()
		require.NoError(t, err)
		assert.Empty(t, entries)

		assert.ErrorIs(t, q.MarkSucceeded("e-1"), models.ErrEntryNotFound)
	})

	t.Run("mark failed applies backoff", func(t *testing.T) {
		q := newQueue(t)
		_, err := q.Enqueue(entry("e-1", "doc-1", map[string]any{"temp": 70}))
		require.NoError(t, err)

		require.NoError(t, q.MarkFailed("e-1", errors.New("unreachable")))

		// Within the backoff window the entry is withheld.
		ready, err := q.DequeueReady(time.Now())
		require.NoError(t, err)
		assert.Empty(t, ready)

		// Past the base backoff it becomes ready again.
		ready, err = q.DequeueReady(time.Now().Add(6 * time.Second))
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.Equal(t, 1, ready[0].RetryCount)
		assert.Equal(t, "unreachable", ready[0].LastError)
		require.NotNil(t, ready[0].LastAttempt)
	})

	t.Run("same-document ordering under backoff", func(t *testing.T) {
		q := newQueue(t)
		_, err := q.Enqueue(entry("e-1", "doc-1", map[string]any{"temp": 70}))
		require.NoError(t, err)
		_, err = q.Enqueue(entry("e-2", "doc-1", map[string]any{"temp": 75}))
		require.NoError(t, err)
		_, err = q.Enqueue(entry("e-3", "doc-2", map[string]any{"temp": 80}))
		require.NoError(t, err)

		// First entry for doc-1 enters backoff; its successor must be
		// withheld so writes cannot reorder, while doc-2 proceeds.
		require.NoError(t, q.MarkFailed("e-1", errors.New("unreachable")))

		ready, err := q.DequeueReady(time.Now())
		require.NoError(t, err)
		require.Len(t, ready, 1)
		assert.Equal(t, "e-3", ready[0].ID)

		ready, err = q.DequeueReady(time.Now().Add(6 * time.Second))
		require.NoError(t, err)
		require.Len(t, ready, 3)
		assert.Equal(t, "e-1", ready[0].ID)
		assert.Equal(t, "e-2", ready[1].ID)
	})

	t.Run("rejected entries are retained but never ready", func(t *testing.T) {
		q := newQueue(t)
		_, err := q.Enqueue(entry("e-1", "doc-1", map[string]any{"bad": "payload"}))
		require.NoError(t, err)

		require.NoError(t, q.MarkRejected("e-1", errors.New("schema violation")))

		ready, err := q.DequeueReady(time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, ready)

		entries, err := q.Entries()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Rejected)
		assert.Equal(t, "schema violation", entries[0].LastError)

		purged, err := q.PurgeRejected()
		require.NoError(t, err)
		assert.Equal(t, 1, purged)

		entries, err = q.Entries()
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("invalid entry refused", func(t *testing.T) {
		q := newQueue(t)
		bad := entry("e-1", "doc-1", nil)
		_, err := q.Enqueue(bad)
		assert.Error(t, err)
	})
}

func TestSQLiteQueueSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.ErrorLevel, "json", &buf)

	q, err := queue.NewSQLiteQueue(dbPath, queue.DefaultBackoff(), logger)
	require.NoError(t, err)

	_, err = q.Enqueue(entry("e-persist", "doc-1", map[string]any{"temp": 70.0}))
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed("e-persist", errors.New("network down")))
	require.NoError(t, q.Close())

	reopened, err := queue.NewSQLiteQueue(dbPath, queue.DefaultBackoff(), logger)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e-persist", entries[0].ID)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Equal(t, "network down", entries[0].LastError)
	assert.InDelta(t, 70.0, entries[0].Payload["temp"].(float64), 0.001)
}
