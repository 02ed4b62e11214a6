// Package integration exercises the whole sync core against real SQLite
// storage and a scripted remote, the same wiring the CLI uses.
package integration_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonteBryce/fieldsync/internal/checkpoint"
	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
	"github.com/MonteBryce/fieldsync/internal/queue"
	"github.com/MonteBryce/fieldsync/internal/recovery"
	"github.com/MonteBryce/fieldsync/internal/remote"
	syncsvc "github.com/MonteBryce/fieldsync/internal/services/sync"
	"github.com/MonteBryce/fieldsync/internal/store"
)

type env struct {
	dbPath  string
	records *store.SQLiteStore
	queue   *queue.SQLiteQueue
	repo    *checkpoint.SQLiteRepository
	remote  *remote.MockStore
	service *syncsvc.Service
}

func newEnv(t *testing.T, dbPath string, rs *remote.MockStore) *env {
	t.Helper()

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	records, err := store.NewSQLiteStore(dbPath, logger)
	require.NoError(t, err)

	q, err := queue.NewSQLiteQueue(dbPath, queue.Backoff{Base: 0, Cap: 0}, logger)
	require.NoError(t, err)

	repo, err := checkpoint.NewSQLiteRepository(dbPath, logger)
	require.NoError(t, err)

	manager := checkpoint.NewManager(repo, 2*time.Hour, logger)
	strategy := recovery.NewStrategy(2*time.Hour, logger)

	service := syncsvc.NewService(records, q, rs, manager, strategy,
		&syncsvc.ServiceConfig{
			MaxConcurrent: 4,
			BatchSize:     2,
			Timeout:       5 * time.Second,
		}, logger)

	e := &env{
		dbPath:  dbPath,
		records: records,
		queue:   q,
		repo:    repo,
		remote:  rs,
		service: service,
	}
	t.Cleanup(func() { e.close() })
	return e
}

func (e *env) close() {
	e.service.Close()
	_ = e.repo.Close()
	_ = e.queue.Close()
	_ = e.records.Close()
}

func reading(id string, temp float64) *models.Record {
	rec := models.NewRecord(id, "p1", models.KindReading, map[string]any{
		"equipmentId": "TANK-42",
		"temperature": temp,
	})
	rec.LogID = "l1"
	rec.Status = models.StatusComplete
	rec.Author = "operator@example.com"
	return rec
}

func TestOfflineFirstLifecycle(t *testing.T) {
	e := newEnv(t, filepath.Join(t.TempDir(), "fieldsync.db"), remote.NewMockStore())
	ctx := context.Background()

	// Saves succeed with the remote down; the writes wait in the queue.
	e.remote.FailNext(100, remote.Unreachable("no route to host"))
	require.NoError(t, e.service.SaveRecord(reading("r-1", 68.5)))
	require.NoError(t, e.service.SaveRecord(reading("r-2", 71.0)))

	result, err := e.service.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Transient)

	unsynced, err := e.service.ListUnsynced("p1")
	require.NoError(t, err)
	assert.Len(t, unsynced, 2)

	// Connectivity returns; the next pass flushes everything.
	e.remote.FailNext(0, nil)
	result, err = e.service.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)

	unsynced, err = e.service.ListUnsynced("p1")
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	doc := e.remote.Doc("projects/p1/logs/l1/entries/r-1")
	require.NotNil(t, doc)
	assert.Equal(t, 68.5, doc["temperature"])
	assert.Equal(t, "complete", doc["status"])
}

func TestQueueSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fieldsync.db")
	rs := remote.NewMockStore()

	// First process: save offline, then crash without syncing.
	first := newEnv(t, dbPath, rs)
	rs.FailNext(100, remote.Unreachable("no route to host"))
	require.NoError(t, first.service.SaveRecord(reading("r-1", 68.5)))
	_, err := first.service.DrainOnce(context.Background())
	require.NoError(t, err)
	first.close()

	// Second process: the queued write is still there and drains cleanly.
	rs.FailNext(0, nil)
	second := newEnv(t, dbPath, rs)

	entries, err := second.service.QueueEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)

	result, err := second.service.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	rec, err := second.service.LoadRecord("r-1")
	require.NoError(t, err)
	assert.True(t, rec.Synced)
}

func TestSameDocumentEditsApplyInOrder(t *testing.T) {
	e := newEnv(t, filepath.Join(t.TempDir(), "fieldsync.db"), remote.NewMockStore())

	rec := reading("r-1", 70.0)
	require.NoError(t, e.service.SaveRecord(rec))

	edited := reading("r-1", 75.0)
	require.NoError(t, e.service.SaveRecord(edited))

	result, err := e.service.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)

	doc := e.remote.Doc("projects/p1/logs/l1/entries/r-1")
	require.NotNil(t, doc)
	assert.Equal(t, 75.0, doc["temperature"], "the newer edit must win")

	require.Len(t, e.remote.MergeCalls, 2)
	assert.Equal(t, 70.0, e.remote.MergeCalls[0].Fields["temperature"])
	assert.Equal(t, 75.0, e.remote.MergeCalls[1].Fields["temperature"])
}

func TestBulkSyncEndToEnd(t *testing.T) {
	e := newEnv(t, filepath.Join(t.TempDir(), "fieldsync.db"), remote.NewMockStore())
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, e.records.Put(reading(fmt.Sprintf("r-%d", i), 70.0+float64(i))))
	}

	cpID, err := e.service.StartBulkSync(ctx, "daily-upload", store.Filter{ProjectID: "p1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := e.service.GetSyncStatus(ctx, cpID)
		return err == nil && status.Completed
	}, 10*time.Second, 20*time.Millisecond)

	status, err := e.service.GetSyncStatus(ctx, cpID)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, status.Progress, 0.001)
	assert.Equal(t, 7, status.Processed)
	assert.Empty(t, status.FailedRecords)

	assert.Equal(t, 7, e.remote.DocCount())

	unsynced, err := e.service.ListUnsynced("p1")
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	// The checkpoint persisted its batch history durably.
	cp, err := e.repo.Load(ctx, cpID)
	require.NoError(t, err)
	assert.Len(t, cp.ProcessedBatches, 4) // 7 records, batches of 2
}

func TestRejectedWriteNeedsOperatorAction(t *testing.T) {
	e := newEnv(t, filepath.Join(t.TempDir(), "fieldsync.db"), remote.NewMockStore())
	ctx := context.Background()

	require.NoError(t, e.service.SaveRecord(reading("r-1", 70.0)))
	e.remote.FailPath("projects/p1/logs/l1/entries/r-1", remote.Rejected("schema mismatch"))

	result, err := e.service.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rejected)

	// The entry is parked, never retried, until an operator purges it.
	result, err = e.service.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)

	entries, err := e.service.QueueEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Rejected)

	purged, err := e.service.PurgeRejected()
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	entries, err = e.service.QueueEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
