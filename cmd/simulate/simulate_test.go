package simulate

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saisumanthklv/weapp-starter-template/internal/app"
	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/conf"
	"github.com/Saisumanthklv/weapp-starter-template/internal/httpclient"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
	"github.com/Saisumanthklv/weapp-starter-template/internal/storage"
)

func loadSettings(t *testing.T) *conf.Settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "main:\n  name: sim\n  environment: trial\napi:\n  baseurl: https://api.sim\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	settings, err := conf.Load(path)
	require.NoError(t, err)
	return settings
}

func TestRunPrintsStats(t *testing.T) {
	client := httpclient.New(nil)
	httpmock.ActivateNonDefault(client.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder("POST", "https://api.sim/error/report",
		httpmock.NewStringResponder(200, `{"code":0}`))
	httpmock.RegisterResponder("POST", "https://api.sim/analytics/events",
		httpmock.NewStringResponder(200, `{"code":0}`))

	out := &bytes.Buffer{}
	deps := app.Deps{
		Console:    logger.NewDiscardLogger(),
		KV:         storage.NewMemoryStore(),
		HTTPClient: client,
		Stdout:     &bytes.Buffer{},
	}
	opts := Options{Pages: []string{"pages/home/index", "pages/cart/index"}, Payments: 2, Errors: 1, JSON: true}
	require.NoError(t, Run(t.Context(), loadSettings(t), opts, deps, out))

	var view statsView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.NotEmpty(t, view.SessionID)
	assert.Positive(t, view.Total)
	assert.Equal(t, 1, view.ByLevel["WARN"], "the second back-to-back payment is throttled")
	assert.Positive(t, view.ByCategory["PAY"])
	assert.Positive(t, view.ByCategory["PERFORMANCE"])
	assert.Positive(t, view.ByCategory["SHARE"])

	calls := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, calls["POST https://api.sim/error/report"])
	assert.Equal(t, 1, calls["POST https://api.sim/analytics/events"])
}

func TestWriteStatsYAML(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, writeStats(out, statsFixture(), false))
	assert.Contains(t, out.String(), "sessionId: session_x")
	assert.Contains(t, out.String(), "total: 3")
}

func statsFixture() applog.Stats {
	return applog.Stats{
		Total:      3,
		SessionID:  "session_x",
		ByLevel:    map[string]int{"INFO": 3},
		ByCategory: map[string]int{"UI": 3},
	}
}
