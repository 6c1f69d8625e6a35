package host

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
)

type fakeStack struct{ pages []string }

func (s *fakeStack) PushPage(path string) { s.pages = append(s.pages, path) }
func (s *fakeStack) PopPage() {
	if len(s.pages) > 0 {
		s.pages = s.pages[:len(s.pages)-1]
	}
}

type fakeTracker struct {
	paths  []string
	params []map[string]any
	panic  bool
}

func (f *fakeTracker) TrackPageView(path string, params map[string]any) {
	if f.panic {
		panic("tracker down")
	}
	f.paths = append(f.paths, path)
	f.params = append(f.params, params)
}

func TestWrapPageLifecycle(t *testing.T) {
	logs := applog.New()
	defer logs.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	stack := &fakeStack{}
	tracker := &fakeTracker{}
	pages := NewPages()

	var calls []string
	wrapped := WrapPage(PageHooks{
		Route:    "src/pages/home/index",
		OnLoad:   func(q map[string]string) { calls = append(calls, "load:"+q["id"]) },
		OnShow:   func() { calls = append(calls, "show") },
		OnUnload: func() { calls = append(calls, "unload") },
	}, PageDeps{
		Log:     logs.Category(applog.CategoryPerformance),
		Pages:   pages,
		Stack:   stack,
		Tracker: tracker,
		Debug:   true,
		Now:     clock,
	})

	wrapped.OnLoad(map[string]string{"id": "7"})
	now = now.Add(120 * time.Millisecond)
	wrapped.OnReady()
	wrapped.OnShow()

	assert.Equal(t, []string{"load:7", "show"}, calls)
	assert.Equal(t, []string{"src/pages/home/index"}, stack.pages)
	require.Len(t, tracker.paths, 1)
	assert.Equal(t, "/src/pages/home/index", tracker.paths[0])
	assert.Equal(t, map[string]string{"id": "7"}, tracker.params[0]["options"])

	pc, ok := pages.CurrentPage()
	require.True(t, ok)
	assert.Equal(t, "src/pages/home/index", pc.Route)
	assert.Equal(t, "7", pc.Options["id"])

	var loadLog *applog.Entry
	for _, e := range logs.GetRecent(0) {
		if e.Message == "page src/pages/home/index loaded" {
			loadLog = &e
		}
	}
	require.NotNil(t, loadLog)
	assert.EqualValues(t, 120, loadLog.Data.(map[string]any)["loadTimeMs"])

	wrapped.OnHide()
	wrapped.OnUnload()
	assert.Empty(t, stack.pages)
	assert.Equal(t, 0, pages.Depth())
	assert.Equal(t, []string{"load:7", "show", "unload"}, calls)
}

func TestWrapPageNilHooksAndTrackerPanic(t *testing.T) {
	tracker := &fakeTracker{panic: true}
	wrapped := WrapPage(PageHooks{Route: "/pages/profile/index"}, PageDeps{Tracker: tracker})

	require.NotPanics(t, func() {
		wrapped.OnLoad(nil)
		wrapped.OnReady()
		wrapped.OnShow()
		wrapped.OnHide()
		wrapped.OnUnload()
	})
}

func TestPagesReshowRefreshesOptions(t *testing.T) {
	p := NewPages()
	_, ok := p.CurrentPage()
	assert.False(t, ok)

	p.Show("a", map[string]string{"x": "1"})
	p.Show("a", map[string]string{"x": "2"})
	p.Show("b", nil)
	assert.Equal(t, 2, p.Depth())
	assert.Equal(t, "b", p.CurrentRoute())

	p.Unload("a")
	assert.Equal(t, 2, p.Depth(), "only the top page can unload")
	p.Unload("b")
	pc, _ := p.CurrentPage()
	assert.Equal(t, "2", pc.Options["x"])
}
