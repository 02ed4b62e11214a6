package events_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MonteBryce/fieldsync/internal/events"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.WarnLevel, "text", &buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown")
	assert.Contains(t, out, "[ERROR] also shown")
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	logger.WithField("record_id", "r-1").Info("record saved")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "record saved", entry["msg"])
	assert.Equal(t, "r-1", entry["record_id"])
	assert.NotEmpty(t, entry["time"])
}

func TestLoggerFieldsAreImmutable(t *testing.T) {
	var buf bytes.Buffer
	base := events.NewTestLogger(events.DebugLevel, "json", &buf)

	child := base.WithFields(map[string]interface{}{
		"component": "sync_engine",
		"project":   "p1",
	})
	grandchild := child.WithField("entry_id", "q-1")

	// The parent must not see the child's fields.
	base.Info("base")
	child.Info("child")
	grandchild.Info("grandchild")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.NotContains(t, entry, "component")

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "sync_engine", entry["component"])
	assert.NotContains(t, entry, "entry_id")

	require.NoError(t, json.Unmarshal([]byte(lines[2]), &entry))
	assert.Equal(t, "sync_engine", entry["component"])
	assert.Equal(t, "q-1", entry["entry_id"])
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "text", &buf)

	logger.WithError(errors.New("connection refused")).Warn("sync attempt failed")
	assert.Contains(t, buf.String(), "error=connection refused")

	buf.Reset()
	logger.WithError(nil).Warn("no error attached")
	assert.NotContains(t, buf.String(), "error=")
}

func TestLoggerTextFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "text", &buf)

	logger.WithFields(map[string]interface{}{
		"zebra": 1,
		"alpha": 2,
	}).Info("ordering")

	out := buf.String()
	assert.Less(t, strings.Index(out, "alpha=2"), strings.Index(out, "zebra=1"))
}
