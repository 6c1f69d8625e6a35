package store_test

import (
	"bytes"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
	"github.com/Saisumanthklv/weapp-starter-template/internal/storage"
	"github.com/Saisumanthklv/weapp-starter-template/internal/store"
)

type call struct {
	newValue, oldValue any
}

type recorder struct {
	mu    sync.Mutex
	calls map[string][]call
}

func newRecorder() *recorder { return &recorder{calls: map[string][]call{}} }

func (r *recorder) on(key string) store.Subscriber {
	return func(n, o any) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls[key] = append(r.calls[key], call{n, o})
	}
}

func (r *recorder) get(key string) []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[key]
}

func TestGetState(t *testing.T) {
	t.Parallel()

	s := store.New(store.WithInitialState(store.InitialState()))
	v, ok := s.Get(store.KeyNetworkStatus)
	assert.True(t, ok)
	assert.Equal(t, store.NetworkOnline, v)

	v, ok = s.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, v)

	all := s.GetState()
	all[store.KeyLoading] = true
	v, _ = s.Get(store.KeyLoading)
	assert.Equal(t, false, v, "GetState returns a copy")
}

func TestSetStateNotifiesOnlyPatchedKeys(t *testing.T) {
	t.Parallel()

	s := store.New(store.WithInitialState(map[string]any{"a": 0, "c": "x"}))
	rec := newRecorder()
	s.Subscribe("a", rec.on("a"))
	s.Subscribe("b", rec.on("b"))
	s.Subscribe("c", rec.on("c"))

	s.SetState(store.Patch{"a": 1, "b": 2})

	assert.Equal(t, []call{{1, 0}}, rec.get("a"))
	assert.Equal(t, []call{{2, nil}}, rec.get("b"))
	assert.Empty(t, rec.get("c"))
}

func TestSameValueStillNotifiesByDefault(t *testing.T) {
	t.Parallel()

	s := store.New(store.WithInitialState(map[string]any{"a": 1}))
	rec := newRecorder()
	s.Subscribe("a", rec.on("a"))
	s.Set("a", 1)
	assert.Len(t, rec.get("a"), 1)
}

func TestWithEqualitySuppressesUnchanged(t *testing.T) {
	t.Parallel()

	s := store.New(store.WithInitialState(map[string]any{"a": 1, "b": 1}), store.WithEquality(reflect.DeepEqual))
	rec := newRecorder()
	s.Subscribe("a", rec.on("a"))
	s.Subscribe("b", rec.on("b"))

	s.SetState(store.Patch{"a": 1, "b": 2})
	assert.Empty(t, rec.get("a"))
	assert.Equal(t, []call{{2, 1}}, rec.get("b"))
}

func TestSubscribersInRegistrationOrderAndIsolated(t *testing.T) {
	t.Parallel()

	console := logger.NewRecorder()
	l := applog.New(applog.WithConsole(console))
	defer l.Close()

	s := store.New(store.WithLogger(l.Category(applog.CategoryData)))
	var order []int
	s.Subscribe("k", func(any, any) { order = append(order, 1) })
	s.Subscribe("k", func(any, any) { panic("listener bug") })
	s.Subscribe("k", func(any, any) { order = append(order, 3) })
	rec := newRecorder()
	s.Subscribe("other", rec.on("other"))

	s.SetState(store.Patch{"k": true, "other": true})

	assert.Equal(t, []int{1, 3}, order)
	assert.Len(t, rec.get("other"), 1, "a failing subscriber must not affect other keys")
	assert.Len(t, l.GetLogs(applog.Filter{Keyword: "state listener error"}), 1)
}

func TestUnsubscribeIsExactAndIdempotent(t *testing.T) {
	t.Parallel()

	s := store.New()
	rec := newRecorder()
	var second []any
	unsub := s.Subscribe("k", rec.on("k"))
	s.Subscribe("k", func(n, _ any) { second = append(second, n) })

	unsub()
	unsub()
	s.Set("k", 1)

	assert.Empty(t, rec.get("k"))
	assert.Equal(t, []any{1}, second)
	assert.Equal(t, 1, s.SubscriberCount("k"))
}

func TestMiddlewarePipeline(t *testing.T) {
	t.Parallel()

	s := store.New(store.WithInitialState(map[string]any{"count": 1}))
	var seen []store.Patch

	s.Use(func(state map[string]any, p store.Patch) store.Patch {
		seen = append(seen, p)
		assert.Equal(t, 1, state["count"], "middleware sees the pre-merge state")
		return store.Patch{"count": p["count"].(int) * 10}
	})
	s.Use(func(_ map[string]any, p store.Patch) store.Patch {
		seen = append(seen, p)
		return nil
	})
	s.Use(func(_ map[string]any, p store.Patch) store.Patch {
		seen = append(seen, p)
		out := store.Patch{"audit": "mw3"}
		for k, v := range p {
			out[k] = v
		}
		return out
	})

	rec := newRecorder()
	s.Subscribe("count", rec.on("count"))
	s.Subscribe("audit", rec.on("audit"))
	s.Set("count", 2)

	require.Len(t, seen, 3)
	assert.Equal(t, store.Patch{"count": 2}, seen[0])
	assert.Equal(t, store.Patch{"count": 20}, seen[1])
	assert.Equal(t, store.Patch{"count": 20}, seen[2], "nil result passes the patch through")
	assert.Equal(t, []call{{20, 1}}, rec.get("count"))
	assert.Equal(t, []call{{"mw3", nil}}, rec.get("audit"))
}

func TestMiddlewarePanicPassesThrough(t *testing.T) {
	t.Parallel()

	s := store.New()
	s.Use(func(map[string]any, store.Patch) store.Patch { panic("bad middleware") })
	s.Set("k", "v")
	v, _ := s.Get("k")
	assert.Equal(t, "v", v)
}

func TestBatchCoalesces(t *testing.T) {
	t.Parallel()

	s := store.New(store.WithInitialState(map[string]any{"a": 1}))
	rounds := 0
	s.Use(func(_ map[string]any, p store.Patch) store.Patch {
		rounds++
		return p
	})
	rec := newRecorder()
	s.Subscribe("a", rec.on("a"))
	s.Subscribe("b", rec.on("b"))

	s.Batch(func(tx *store.Tx) {
		v, _ := tx.Get("a")
		tx.Set("a", v.(int)+1)
		v, _ = tx.Get("a")
		tx.Set("a", v.(int)+1)
		tx.Merge(store.Patch{"b": "x"})
		assert.Equal(t, map[string]any{"a": 3, "b": "x"}, tx.State())
	})

	assert.Equal(t, 1, rounds)
	assert.Equal(t, []call{{3, 1}}, rec.get("a"))
	assert.Len(t, rec.get("b"), 1)

	s.Batch(func(*store.Tx) {})
	assert.Equal(t, 1, rounds, "empty batch writes nothing")

	s.Batch(func(tx *store.Tx) {
		tx.Set("a", 100)
		panic("updater bug")
	})
	v, _ := s.Get("a")
	assert.Equal(t, 3, v)
}

func TestNestedWriteMergesNowAndNotifiesAfterRound(t *testing.T) {
	t.Parallel()

	s := store.New()
	var events []string
	var seen any
	s.Subscribe("a", func(n, _ any) {
		events = append(events, "a")
		s.Set("b", n)
		seen, _ = s.Get("b")
		events = append(events, "a-done")
	})
	s.Subscribe("c", func(any, any) { events = append(events, "c") })
	s.Subscribe("b", func(any, any) { events = append(events, "b") })

	s.SetState(store.Patch{"a": 1, "c": 1})

	assert.Equal(t, []string{"a", "a-done", "c", "b"}, events, "nested notifications run after the current round")
	assert.Equal(t, 1, seen, "nested write is visible to the writer")
	v, _ := s.Get("b")
	assert.Equal(t, 1, v)
}

func TestSubscriberPageStackWritesAreNotLost(t *testing.T) {
	t.Parallel()

	s := store.New(store.WithInitialState(store.InitialState()))
	h := store.NewHelpers(s, nil, nil)
	s.Subscribe(store.KeyNetworkStatus, func(any, any) {
		h.PushPage("pages/home/index")
		h.PushPage("pages/home/detail")
	})

	h.SetNetworkStatus(store.NetworkOffline)

	assert.Equal(t, []string{"pages/home/index", "pages/home/detail"}, h.PageStack())
}

func TestWriteVisibleWhileAnotherGoroutineNotifies(t *testing.T) {
	t.Parallel()

	s := store.New()
	entered := make(chan struct{})
	release := make(chan struct{})
	s.Subscribe("gate", func(any, any) {
		close(entered)
		<-release
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Set("gate", true)
	}()
	<-entered

	s.Set("x", 42)
	v, ok := s.Get("x")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	close(release)
	<-done
}

func TestConcurrentPushPage(t *testing.T) {
	t.Parallel()

	s := store.New(store.WithInitialState(store.InitialState()))
	h := store.NewHelpers(s, nil, nil)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.PushPage("pages/list/index")
		}()
	}
	wg.Wait()

	assert.Len(t, h.PageStack(), 50)
}

func TestUpdateNilPatchWritesNothing(t *testing.T) {
	t.Parallel()

	s := store.New(store.WithInitialState(map[string]any{"n": 1}))
	rec := newRecorder()
	s.Subscribe("n", rec.on("n"))

	s.Update(func(state map[string]any) store.Patch {
		assert.Equal(t, 1, state["n"])
		return nil
	})
	s.Update(func(state map[string]any) store.Patch {
		return store.Patch{"n": state["n"].(int) + 1}
	})

	assert.Equal(t, []call{{2, 1}}, rec.get("n"))
}

func TestConcurrentSetState(t *testing.T) {
	t.Parallel()

	s := store.New(store.WithInitialState(map[string]any{"n": 0}))
	var mu sync.Mutex
	notified := 0
	s.Subscribe("n", func(any, any) {
		mu.Lock()
		notified++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set("n", i)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return notified == 50
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	kv := storage.NewMemoryStore()
	s := store.New(store.WithInitialState(store.InitialState()))
	h := store.NewHelpers(s, kv, nil)

	rec := newRecorder()
	s.Subscribe(store.KeyIsLoggedIn, rec.on(store.KeyIsLoggedIn))

	h.SetUserInfo(store.UserInfo{"nickname": "kit"})
	assert.Equal(t, []call{{true, false}}, rec.get(store.KeyIsLoggedIn))
	var persisted store.UserInfo
	ok, err := kv.Get(storage.KeyUserInfo, &persisted)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "kit", persisted["nickname"])

	h.SetUserInfo(nil)
	v, _ := s.Get(store.KeyUserInfo)
	assert.Nil(t, v)
	ok, _ = kv.Get(storage.KeyUserInfo, &persisted)
	assert.False(t, ok)

	h.PushPage("pages/home/index")
	h.PushPage("pages/profile/index")
	assert.Equal(t, []string{"pages/home/index", "pages/profile/index"}, h.PageStack())
	h.PopPage()
	h.PopPage()
	h.PopPage()
	assert.Empty(t, h.PageStack())

	h.SetLoading(true)
	h.SetNetworkStatus(store.NetworkOffline)
	h.SetTabBarIndex(2)
	state := s.GetState()
	assert.Equal(t, true, state[store.KeyLoading])
	assert.Equal(t, store.NetworkOffline, state[store.KeyNetworkStatus])
	assert.Equal(t, 2, state[store.KeyTabBarIndex])
}

func TestRestore(t *testing.T) {
	t.Parallel()

	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(storage.KeyUserInfo, map[string]any{"id": "u1"}))

	s := store.New(store.WithInitialState(store.InitialState()))
	store.NewHelpers(s, kv, nil).Restore()

	v, _ := s.Get(store.KeyIsLoggedIn)
	assert.Equal(t, true, v)
	info, _ := s.Get(store.KeyUserInfo)
	assert.Equal(t, store.UserInfo{"id": "u1"}, info)
}

func TestDebugMiddleware(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	s := store.New(store.WithInitialState(map[string]any{"a": 1}))
	s.Use(store.DebugMiddleware(logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)))
	s.Set("b", 2)

	out := buf.String()
	assert.Contains(t, out, "state update")
	assert.Contains(t, out, "updates=map[b:2]")
	assert.Contains(t, out, `after="map[a:1 b:2]"`)
}
