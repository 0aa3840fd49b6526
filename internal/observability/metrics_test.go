package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordUpdate("message")
	m.RecordUpdate("message")
	m.RecordUpdate("callback")
	m.RecordAction("to_work", "ok")
	m.RecordAction("to_work", "error")
	m.RecordError("/export", "GET", "UNAUTHORIZED")
	m.RecordNotification(true)
	m.RecordNotification(true)
	m.RecordNotification(false)

	snapshot := m.Snapshot()
	updates := snapshot["updates"].(map[string]int64)
	assert.Equal(t, int64(2), updates["message"])
	assert.Equal(t, int64(1), updates["callback"])

	actions := snapshot["actions"].(map[string]int64)
	assert.Equal(t, int64(1), actions["to_work|ok"])
	assert.Equal(t, int64(1), actions["to_work|error"])

	errCounts := snapshot["errors"].(map[string]int64)
	assert.Equal(t, int64(1), errCounts["GET /export|UNAUTHORIZED"])

	notifications := snapshot["notifications"].(map[string]int64)
	assert.Equal(t, int64(2), notifications["sent"])
	assert.Equal(t, int64(1), notifications["failed"])
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.RecordUpdate("message")

	snapshot := m.Snapshot()
	snapshot["updates"].(map[string]int64)["message"] = 99

	fresh := m.Snapshot()
	assert.Equal(t, int64(1), fresh["updates"].(map[string]int64)["message"])
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordUpdate("message")
	m.RecordAction("to_work", "ok")
	m.RecordError("/export", "GET", "X")
	m.RecordNotification(true)

	snapshot := m.Snapshot()
	require.NotNil(t, snapshot)
	assert.Empty(t, snapshot)
}
