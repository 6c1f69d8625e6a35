package applog_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
)

type flakySource struct {
	failures int32
	calls    atomic.Int32
	body     string
}

func (s *flakySource) Fetch(_ context.Context, _ string, out any) error {
	n := s.calls.Add(1)
	if n <= s.failures {
		return assert.AnError
	}
	return json.Unmarshal([]byte(s.body), out)
}

func TestRemoteConfigRetriesAndApplies(t *testing.T) {
	t.Parallel()

	l := newLogger(t)
	src := &flakySource{failures: 1, body: `{"level":2,"enabledCategories":["PAY"],"uploadUrl":"https://logs.example.com"}`}
	f := applog.NewRemoteConfigFetcher(l, src, "https://cfg.example.com/log-config", nil)
	f.SetRetryPolicy(2, time.Millisecond)

	require.NoError(t, f.Refresh(t.Context()))
	assert.Equal(t, int32(2), src.calls.Load())

	cfg := l.Config()
	assert.Equal(t, applog.LevelWarn, cfg.MinLevel)
	assert.Equal(t, []applog.Category{applog.CategoryPay}, cfg.EnabledCategories)
	assert.Equal(t, "https://logs.example.com", cfg.UploadURL)
}

func TestRemoteConfigFailureKeepsConfig(t *testing.T) {
	t.Parallel()

	l := newLogger(t)
	src := &flakySource{failures: 10}
	f := applog.NewRemoteConfigFetcher(l, src, "https://cfg.example.com/log-config", nil)
	f.SetRetryPolicy(1, time.Millisecond)

	require.Error(t, f.Refresh(t.Context()))
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, applog.LevelDebug, l.Config().MinLevel)
}

func TestRemoteConfigNoEndpoint(t *testing.T) {
	t.Parallel()

	src := &flakySource{}
	f := applog.NewRemoteConfigFetcher(newLogger(t), src, "", nil)
	require.NoError(t, f.Refresh(t.Context()))
	assert.Zero(t, src.calls.Load())
}
