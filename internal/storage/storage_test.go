package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

type userInfo struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

func backends(t *testing.T) map[string]KV {
	t.Helper()

	sqliteStore, err := OpenSQLite(":memory:", logger.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]KV{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestKVContract(t *testing.T) {
	t.Parallel()

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var missing string
			ok, err := kv.Get(KeyDeviceID, &missing)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set(KeyDeviceID, "abc123"))
			assert.Equal(t, "abc123", GetString(kv, KeyDeviceID))

			require.NoError(t, kv.Set(KeyUserInfo, userInfo{ID: "u1", Nickname: "kit"}))
			var got userInfo
			ok, err = kv.Get(KeyUserInfo, &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, userInfo{ID: "u1", Nickname: "kit"}, got)

			require.NoError(t, kv.Set(KeyUserInfo, userInfo{ID: "u2"}))
			ok, err = kv.Get(KeyUserInfo, &got)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "u2", got.ID, "set must overwrite")

			require.NoError(t, kv.Remove(KeyUserInfo))
			require.NoError(t, kv.Remove(KeyUserInfo), "removing twice is fine")
			ok, err = kv.Get(KeyUserInfo, &got)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestKVDecodeMismatch(t *testing.T) {
	t.Parallel()

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.NoError(t, kv.Set("n", 42))
			var s string
			ok, err := kv.Get("n", &s)
			assert.True(t, ok)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategorySerialization))
			assert.Empty(t, GetString(kv, "n"))
		})
	}
}

func TestSetUnserializable(t *testing.T) {
	t.Parallel()

	err := NewMemoryStore().Set("fn", func() {})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySerialization))
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kv.db")
	first, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Set(KeyUserID, "user-7"))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, "user-7", GetString(second, KeyUserID))
}

func TestGormLoggerAdapterTrace(t *testing.T) {
	t.Parallel()

	rec := logger.NewRecorder()
	store, err := OpenSQLite(":memory:", rec)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set("k", "v"))
	assert.NotZero(t, rec.Count(logger.LogLevelTrace, "kv statement"))
}
