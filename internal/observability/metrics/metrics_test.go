package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppLogMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewAppLogMetrics(registry)
	require.NoError(t, err)

	m.RecordAdmitted("ERROR", "PAY", 3)
	m.RecordAdmitted("ERROR", "PAY", 4)
	m.RecordFiltered("level")
	m.RecordEvicted()
	m.RecordUpload("fired")

	assert.InDelta(t, 2, testutil.ToFloat64(m.entriesAdmitted.WithLabelValues("ERROR", "PAY")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.bufferSize), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.entriesFiltered.WithLabelValues("level")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.entriesEvicted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("fired")), 0)
}

func TestQueueMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewQueueMetrics(registry)
	require.NoError(t, err)

	m.SetDepth("errors", 2)
	m.RecordSend("errors", "error", 0.01)
	m.RecordRetry("errors")
	m.RecordSend("errors", "success", 0.02)
	m.RecordDelivered("errors")
	m.RecordDrop("analytics")

	assert.InDelta(t, 2, testutil.ToFloat64(m.depth.WithLabelValues("errors")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sendsTotal.WithLabelValues("errors", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.retriesTotal.WithLabelValues("errors")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.delivered.WithLabelValues("errors")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.dropsTotal.WithLabelValues("analytics")), 0)
}

func TestPluginAndStoreMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	pm, err := NewPluginMetrics(registry)
	require.NoError(t, err)
	sm, err := NewStoreMetrics(registry)
	require.NoError(t, err)

	pm.RecordHook("payment:success", false)
	pm.RecordHook("payment:success", true)
	pm.SetRegistered(3)
	sm.RecordUpdate()
	sm.RecordNotification("userInfo", true)

	assert.InDelta(t, 2, testutil.ToFloat64(pm.hookInvocations.WithLabelValues("payment:success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.hookFailures.WithLabelValues("payment:success")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(pm.activePlugins), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(sm.updatesTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(sm.subscriberFailures.WithLabelValues("userInfo")), 0)
}

func TestNilRecordersAreSafe(t *testing.T) {
	t.Parallel()

	var a *AppLogMetrics
	var q *QueueMetrics
	var p *PluginMetrics
	var s *StoreMetrics

	assert.NotPanics(t, func() {
		a.RecordAdmitted("INFO", "UI", 1)
		a.RecordUpload("scheduled")
		q.RecordSend("x", "success", 0)
		q.RecordDrop("x")
		p.RecordHook("h", true)
		s.RecordNotification("k", false)
	})
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewQueueMetrics(registry)
	require.NoError(t, err)
	_, err = NewQueueMetrics(registry)
	require.Error(t, err)
}
