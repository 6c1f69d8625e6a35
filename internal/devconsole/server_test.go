package devconsole

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/observability"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin"
	"github.com/Saisumanthklv/weapp-starter-template/internal/store"
)

type fixture struct {
	server *Server
	logs   *applog.Logger
	ids    []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := observability.NewMetrics()
	require.NoError(t, err)

	logs := applog.New(applog.WithMetrics(m.AppLog))
	t.Cleanup(logs.Close)

	f := &fixture{logs: logs}
	for i, msg := range []string{"launch", "login", "cart opened", "checkout", "payment failed"} {
		level := applog.LevelInfo
		if i == 4 {
			level = applog.LevelError
		}
		e, ok := logs.Log(level, applog.CategoryUser, msg, nil, nil)
		require.True(t, ok)
		f.ids = append(f.ids, e.ID)
	}

	st := store.New(store.WithInitialState(store.InitialState()))
	st.Set(store.KeyTabBarIndex, 2)
	registry := plugin.NewRegistry(logs)
	registry.Register("banner", &plugin.Base{})

	f.server = New("127.0.0.1:0", Sources{
		Logs:    logs,
		State:   st,
		Plugins: registry,
		Metrics: m.Handler(),
	}, nil)
	return f
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.server.Echo.ServeHTTP(rec, req)
	return rec
}

func TestRecentLogs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/logs/recent?n=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "checkout", entries[0]["message"])
	assert.Equal(t, "payment failed", entries[1]["message"])

	rec = f.do(t, http.MethodGet, "/logs/recent?n=many")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportLogs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/logs/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), f.logs.SessionID())

	var doc struct {
		SessionID string `json:"sessionId"`
		TotalLogs int    `json:"totalLogs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, f.logs.SessionID(), doc.SessionID)
	assert.Equal(t, 5, doc.TotalLogs)
}

func TestStatsAndClear(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/logs/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats applog.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 1, stats.ByLevel["ERROR"])

	rec = f.do(t, http.MethodDelete, "/logs")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, f.logs.Len())
}

func TestLogContext(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/logs/"+f.ids[2]+"/context?window=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var lc struct {
		Target      map[string]any   `json:"targetLog"`
		Entries     []map[string]any `json:"contextLogs"`
		TargetIndex int              `json:"targetIndex"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lc))
	assert.Equal(t, "cart opened", lc.Target["message"])
	assert.Len(t, lc.Entries, 3)
	assert.Equal(t, 1, lc.TargetIndex)

	rec = f.do(t, http.MethodGet, "/logs/unknown/context")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatePluginsAndMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/state")
	require.Equal(t, http.StatusOK, rec.Code)
	var state map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.InDelta(t, 2, state[store.KeyTabBarIndex], 0)
	assert.Equal(t, store.NetworkOnline, state[store.KeyNetworkStatus])

	rec = f.do(t, http.MethodGet, "/plugins")
	require.Equal(t, http.StatusOK, rec.Code)
	var plugins []plugin.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plugins))
	require.Len(t, plugins, 1)
	assert.Equal(t, "banner", plugins[0].Name)
	assert.Equal(t, applog.Category("PROBE"), plugins[0].Category)

	rec = f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestStartStopsWithContext(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- f.server.Start(ctx) }()

	require.Eventually(t, func() bool { return f.server.Echo.ListenerAddr() != nil }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
