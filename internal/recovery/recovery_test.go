package recovery_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
	"github.com/MonteBryce/fieldsync/internal/recovery"
)

func newStrategy() *recovery.Strategy {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	return recovery.NewStrategy(2*time.Hour, logger)
}

func TestRecover(t *testing.T) {
	t.Run("fresh incomplete checkpoint is viable", func(t *testing.T) {
		cp := models.NewCheckpoint("daily-upload", 100, map[string]string{"project_id": "p1"})
		cp.CurrentBatch = 3
		cp.ProcessedRecords = 60

		plan := newStrategy().Recover(cp)
		require.True(t, plan.Viable)
		assert.Equal(t, 3, plan.LastBatch)
		assert.Equal(t, 60, plan.Processed)
		assert.Equal(t, "daily-upload", plan.JobKind)
		assert.Equal(t, "p1", plan.Context["project_id"])
		assert.Contains(t, plan.Reason, "resumable from batch 3")
	})

	t.Run("completed checkpoint is not viable", func(t *testing.T) {
		cp := models.NewCheckpoint("daily-upload", 10, nil)
		cp.Completed = true

		plan := newStrategy().Recover(cp)
		assert.False(t, plan.Viable)
		assert.Contains(t, plan.Reason, "already completed")
	})

	t.Run("stale checkpoint is not viable", func(t *testing.T) {
		cp := models.NewCheckpoint("daily-upload", 10, nil)
		cp.StartTime = time.Now().UTC().Add(-3 * time.Hour)
		cp.CurrentBatch = 1
		cp.ProcessedRecords = 2

		plan := newStrategy().Recover(cp)
		assert.False(t, plan.Viable)
		assert.Contains(t, plan.Reason, "stale")
		// Position is still reported for diagnostics.
		assert.Equal(t, 1, plan.LastBatch)
		assert.Equal(t, 2, plan.Processed)
	})

	t.Run("never mutates the checkpoint", func(t *testing.T) {
		cp := models.NewCheckpoint("daily-upload", 10, nil)
		cp.ProcessedRecords = 4
		before := cp.Clone()

		_ = newStrategy().Recover(cp)
		assert.Equal(t, before, cp)
	})
}

func TestRecommendations(t *testing.T) {
	s := newStrategy()

	t.Run("healthy running job has no hints", func(t *testing.T) {
		cp := models.NewCheckpoint("daily-upload", 10, nil)
		cp.ProcessedRecords = 5
		assert.Empty(t, s.Recommendations(cp))
	})

	t.Run("stale job suggests restart", func(t *testing.T) {
		cp := models.NewCheckpoint("daily-upload", 10, nil)
		cp.StartTime = time.Now().UTC().Add(-3 * time.Hour)

		hints := s.Recommendations(cp)
		require.NotEmpty(t, hints)
		assert.Contains(t, hints[0], "stale")
	})

	t.Run("high failure rate suggests inspection", func(t *testing.T) {
		cp := models.NewCheckpoint("daily-upload", 10, nil)
		cp.ProcessedRecords = 8
		cp.FailedRecords = []string{"r-1", "r-2", "r-3"}

		hints := s.Recommendations(cp)
		require.NotEmpty(t, hints)
		assert.Contains(t, hints[0], "inspect errors")
	})

	t.Run("few failures only get a note", func(t *testing.T) {
		cp := models.NewCheckpoint("daily-upload", 100, nil)
		cp.ProcessedRecords = 50
		cp.FailedRecords = []string{"r-1"}

		hints := s.Recommendations(cp)
		require.Len(t, hints, 1)
		assert.Contains(t, hints[0], "reported on completion")
	})

	t.Run("low throughput suggests connectivity check", func(t *testing.T) {
		cp := models.NewCheckpoint("daily-upload", 10000, nil)
		cp.StartTime = time.Now().UTC().Add(-time.Hour)
		cp.ProcessedRecords = 10 // ~0.003 records/sec

		hints := s.Recommendations(cp)
		require.NotEmpty(t, hints)
		assert.Contains(t, hints[0], "low throughput")
	})

	t.Run("last error is surfaced", func(t *testing.T) {
		cp := models.NewCheckpoint("daily-upload", 10, nil)
		cp.LastError = "remote rejected: schema mismatch"

		hints := s.Recommendations(cp)
		require.Len(t, hints, 1)
		assert.Contains(t, hints[0], "schema mismatch")
	})

	t.Run("completed job reports failures only", func(t *testing.T) {
		clean := models.NewCheckpoint("daily-upload", 10, nil)
		clean.Completed = true
		clean.LastError = "stale tail error"
		assert.Empty(t, s.Recommendations(clean))

		flawed := models.NewCheckpoint("daily-upload", 10, nil)
		flawed.Completed = true
		flawed.FailedRecords = []string{"r-1"}
		hints := s.Recommendations(flawed)
		require.Len(t, hints, 1)
		assert.Contains(t, hints[0], "completed with 1 failed")
	})
}
