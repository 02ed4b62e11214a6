package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonteBryce/fieldsync/internal/models"
)

func TestNewRecordStartsUnsynced(t *testing.T) {
	r := models.NewRecord("r-1", "p1", models.KindReading, map[string]any{
		"temperature": 70.0,
	})

	assert.False(t, r.Synced)
	assert.Nil(t, r.SyncedAt)
	assert.Equal(t, models.StatusIncomplete, r.Status)
	require.NoError(t, r.Validate())
}

func TestRecordSyncTransitions(t *testing.T) {
	r := models.NewRecord("r-1", "p1", models.KindReading, nil)

	r.MarkSyncFailed(errors.New("network unreachable"))
	assert.False(t, r.Synced)
	assert.Equal(t, "network unreachable", r.SyncError)

	at := time.Now()
	r.MarkSynced(at)
	assert.True(t, r.Synced)
	assert.Empty(t, r.SyncError)
	require.NotNil(t, r.SyncedAt)
	assert.Equal(t, at.UTC(), *r.SyncedAt)

	// A domain edit makes the record unsynced again.
	r.Touch()
	assert.False(t, r.Synced)
	assert.Nil(t, r.SyncedAt)
}

func TestRecordCollection(t *testing.T) {
	assert.Equal(t, "entries", models.NewRecord("a", "p", models.KindReading, nil).Collection())
	assert.Equal(t, "rollups", models.NewRecord("b", "p", models.KindRollup, nil).Collection())
	assert.Equal(t, "reference", models.NewRecord("c", "p", models.KindReference, nil).Collection())
}

func TestReadingView(t *testing.T) {
	r := models.NewRecord("r-1", "p1", models.KindReading, map[string]any{
		"equipmentId": "flare-07",
		"hour":        14,
		"temperature": 721.4,
		"pressure":    2.3,
		"flowRate":    18.0,
		"notes":       "steady",
		"recordedAt":  "2026-08-26T14:05:00Z",
	})

	reading, err := r.AsReading()
	require.NoError(t, err)

	assert.Equal(t, "flare-07", reading.EquipmentID)
	assert.Equal(t, 14, reading.Hour)
	assert.InDelta(t, 721.4, reading.Temperature, 0.001)
	assert.Equal(t, "steady", reading.Notes)
	assert.Equal(t, 14, reading.RecordedAt.UTC().Hour())

	// Wrong kind is refused at the boundary.
	rollup := models.NewRecord("r-2", "p1", models.KindRollup, nil)
	_, err = rollup.AsReading()
	assert.Error(t, err)
}

func TestRollupView(t *testing.T) {
	r := models.NewRecord("r-1", "p1", models.KindRollup, map[string]any{
		"date":           "2026-08-26",
		"readingCount":   float64(24), // JSON decoding yields float64
		"completeCount":  float64(22),
		"avgTemperature": 715.2,
		"maxPressure":    3.1,
	})

	rollup, err := r.AsRollup()
	require.NoError(t, err)

	assert.Equal(t, "2026-08-26", rollup.Date)
	assert.Equal(t, 24, rollup.ReadingCount)
	assert.Equal(t, 22, rollup.CompleteCount)
	assert.InDelta(t, 715.2, rollup.AvgTemperature, 0.001)
}

func TestRecordCloneIsolatesPayload(t *testing.T) {
	r := models.NewRecord("r-1", "p1", models.KindReading, map[string]any{
		"temperature": 70.0,
		"meta":        map[string]any{"unit": "F"},
	})

	clone := r.Clone()
	clone.Payload["temperature"] = 99.0
	clone.Payload["meta"].(map[string]any)["unit"] = "C"

	assert.Equal(t, 70.0, r.Payload["temperature"])
	assert.Equal(t, "F", r.Payload["meta"].(map[string]any)["unit"])
}
