package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonteBryce/fieldsync/internal/models"
)

func TestCheckpointProgress(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		processed int
		completed bool
		want      float64
	}{
		{"empty job", 0, 0, false, 0},
		{"empty completed job", 0, 0, true, 100},
		{"halfway", 10, 5, false, 50},
		{"done", 10, 10, false, 100},
		{"over-count clamped", 10, 12, false, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := &models.Checkpoint{
				ID:               "cp-1",
				JobKind:          "daily-upload",
				StartTime:        time.Now(),
				TotalRecords:     tt.total,
				ProcessedRecords: tt.processed,
				Completed:        tt.completed,
			}
			assert.InDelta(t, tt.want, cp.Progress(), 0.001)
		})
	}
}

func TestCheckpointStaleness(t *testing.T) {
	cp := models.NewCheckpoint("daily-upload", 10, nil)

	assert.False(t, cp.IsStale(2*time.Hour), "fresh checkpoint must not be stale")

	cp.StartTime = time.Now().Add(-3 * time.Hour)
	assert.True(t, cp.IsStale(2*time.Hour))
	assert.False(t, cp.IsStale(4*time.Hour))

	// Completion clears staleness regardless of age.
	cp.Completed = true
	assert.False(t, cp.IsStale(2*time.Hour))
}

func TestCheckpointValidate(t *testing.T) {
	cp := models.NewCheckpoint("daily-upload", 10, map[string]string{"project_id": "p1"})
	require.NoError(t, cp.Validate())

	cp.ProcessedRecords = 11
	assert.Error(t, cp.Validate(), "processed must never exceed total")

	cp.ProcessedRecords = -1
	assert.Error(t, cp.Validate())
}

func TestCheckpointHasBatch(t *testing.T) {
	cp := models.NewCheckpoint("daily-upload", 10, nil)
	assert.False(t, cp.HasBatch("b-0"))

	cp.ProcessedBatches = append(cp.ProcessedBatches, "b-0")
	assert.True(t, cp.HasBatch("b-0"))
	assert.False(t, cp.HasBatch("b-1"))
}

func TestCheckpointClone(t *testing.T) {
	cp := models.NewCheckpoint("daily-upload", 10, map[string]string{"project_id": "p1"})
	cp.ProcessedBatches = []string{"b-0"}
	cp.FailedRecords = []string{"r-1"}

	clone := cp.Clone()
	clone.ProcessedBatches[0] = "changed"
	clone.FailedRecords[0] = "changed"
	clone.Context["project_id"] = "changed"

	assert.Equal(t, "b-0", cp.ProcessedBatches[0])
	assert.Equal(t, "r-1", cp.FailedRecords[0])
	assert.Equal(t, "p1", cp.Context["project_id"])
}
