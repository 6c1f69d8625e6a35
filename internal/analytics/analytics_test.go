package analytics

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/retryqueue"
	"github.com/Saisumanthklv/weapp-starter-template/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type batchSender struct {
	mu       sync.Mutex
	failures int
	endpoint string
	batches  []Batch
}

func (s *batchSender) Send(_ context.Context, endpoint string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("offline")
	}
	s.endpoint = endpoint
	s.batches = append(s.batches, payload.(Batch))
	return nil
}

func TestSessionAndDeviceID(t *testing.T) {
	kv := storage.NewMemoryStore()
	a := New(kv)
	b := New(kv)

	assert.Regexp(t, regexp.MustCompile(`^session_[0-9a-f]{32}$`), a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), a.DeviceID())
	assert.Equal(t, a.DeviceID(), b.DeviceID(), "device id persists")
	assert.Equal(t, a.DeviceID(), storage.GetString(kv, storage.KeyDeviceID))
}

func TestRollingStoreKeepsLastTen(t *testing.T) {
	kv := storage.NewMemoryStore()
	tr := New(kv)

	for i := range 15 {
		tr.TrackEvent(fmt.Sprintf("tap_%d", i), map[string]any{"i": i})
	}

	stored := tr.Stored()
	require.Len(t, stored, 10)
	assert.Equal(t, "tap_5", stored[0].Event)
	assert.Equal(t, "tap_14", stored[9].Event)
	for _, e := range stored {
		assert.NotEmpty(t, e.ID)
		assert.NotEmpty(t, e.StoredAt)
		assert.Equal(t, tr.SessionID(), e.SessionID)
	}

	tr.ClearStored()
	assert.Empty(t, tr.Stored())
}

func TestTrackPageView(t *testing.T) {
	logs := applog.New()
	defer logs.Close()

	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	tr := New(storage.NewMemoryStore(),
		WithLogger(logs.Category(applog.CategoryAnalytics)),
		WithClock(func() time.Time { return now }),
		WithCapacity(3))

	tr.TrackPageView("/src/pages/home/index", nil)

	stored := tr.Stored()
	require.Len(t, stored, 1)
	e := stored[0]
	assert.Equal(t, EventPageView, e.Event)
	assert.Equal(t, "/src/pages/home/index", e.PagePath)
	assert.Equal(t, now.UnixMilli(), e.Timestamp)
	assert.Equal(t, "2026-05-04T10:30:00.000Z", e.StoredAt)
	assert.Regexp(t, fmt.Sprintf(`^%d_[0-9a-f]{9}$`, now.UnixMilli()), e.ID)

	stats := logs.GetStats()
	assert.Equal(t, 1, stats.ByLevel["INFO"])
	assert.Equal(t, stats.Total, stats.ByCategory["ANALYTICS"])
}

func TestFlushUploadsAndClears(t *testing.T) {
	sender := &batchSender{failures: 1}
	tr := New(storage.NewMemoryStore(),
		WithSender(sender, "/analytics/batch"),
		WithQueueOptions(retryqueue.WithSleeper[Batch](func(context.Context, time.Duration) error { return nil })))
	defer tr.Close()

	n, err := tr.Flush(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing stored")

	tr.TrackEvent("add_to_cart", map[string]any{"sku": "A1"})
	tr.TrackEvent("checkout", nil)

	n, err = tr.Flush(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, tr.Stored())

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))

	require.Len(t, sender.batches, 1)
	assert.Equal(t, "/analytics/batch", sender.endpoint)
	assert.Equal(t, tr.SessionID(), sender.batches[0].SessionID)
	assert.Equal(t, tr.DeviceID(), sender.batches[0].DeviceID)
	assert.Len(t, sender.batches[0].Events, 2)
}

func TestFlushWithoutSender(t *testing.T) {
	tr := New(storage.NewMemoryStore())
	tr.TrackEvent("x", nil)

	n, err := tr.Flush(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, tr.Stored(), 1, "events stay until a sender exists")
	require.NoError(t, tr.Wait(t.Context()))
	tr.Close()
}

func TestFlushKeepsEventsWhenQueueClosed(t *testing.T) {
	logs := applog.New()
	defer logs.Close()
	tr := New(storage.NewMemoryStore(),
		WithSender(&batchSender{}, "/analytics/batch"),
		WithLogger(logs.Category(applog.CategoryAnalytics)))
	tr.TrackEvent("checkout", nil)
	tr.Close()

	n, err := tr.Flush(t.Context())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Len(t, tr.Stored(), 1, "events survive a failed enqueue")
	assert.Equal(t, 1, logs.GetStats().ByLevel["WARN"])
}

type failingDeviceKV struct {
	storage.KV
}

func (f failingDeviceKV) Set(key string, value any) error {
	if key == storage.KeyDeviceID {
		return fmt.Errorf("disk full")
	}
	return f.KV.Set(key, value)
}

func TestDeviceIDPersistFailureIsLogged(t *testing.T) {
	logs := applog.New()
	defer logs.Close()

	id := DeviceID(failingDeviceKV{storage.NewMemoryStore()}, nil, logs.Category(applog.CategoryAnalytics))

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), id)
	recent := logs.GetRecent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, applog.LevelWarn, recent[0].Level)
	assert.Equal(t, "failed to persist device id", recent[0].Message)
}
