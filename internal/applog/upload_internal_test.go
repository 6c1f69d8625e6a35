package applog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupersededTimerFireIsSkipped(t *testing.T) {
	t.Parallel()

	var uploads atomic.Int32
	cfg := DefaultConfig()
	cfg.UploadURL = "https://logs.example.com/upload"
	cfg.UploadDebounce = time.Hour
	l := New(WithConfig(cfg), WithUploader(UploaderFunc(func(context.Context, UploadBatch) error {
		uploads.Add(1)
		return nil
	})))
	defer l.Close()

	l.Log(LevelError, CategoryAPI, "first", nil, nil)
	l.mu.Lock()
	stale := l.uploadGen
	l.mu.Unlock()
	l.Log(LevelError, CategoryAPI, "second", nil, nil)

	// The first timer fires after the second one replaced it.
	l.fireUpload(stale)
	assert.True(t, l.UploadPending(), "the newer timer stays tracked")
	assert.Zero(t, uploads.Load())

	require.NoError(t, l.Flush(t.Context()))
	assert.EqualValues(t, 1, uploads.Load())
	assert.False(t, l.UploadPending())
}

func TestCurrentTimerFireUploads(t *testing.T) {
	t.Parallel()

	var got []UploadBatch
	cfg := DefaultConfig()
	cfg.UploadURL = "https://logs.example.com/upload"
	cfg.UploadDebounce = time.Hour
	l := New(WithConfig(cfg), WithUploader(UploaderFunc(func(_ context.Context, b UploadBatch) error {
		got = append(got, b)
		return nil
	})))
	defer l.Close()

	l.Log(LevelError, CategoryAPI, "boom", nil, nil)
	l.mu.Lock()
	current := l.uploadGen
	l.mu.Unlock()

	l.fireUpload(current)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Entries, 1)
	assert.False(t, l.UploadPending())
}
