package host

import (
	"strings"
	"sync"
	"time"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
)

// PageHooks are the lifecycle callbacks of one page. Nil hooks are skipped.
type PageHooks struct {
	Route    string
	OnLoad   func(options map[string]string)
	OnReady  func()
	OnShow   func()
	OnHide   func()
	OnUnload func()
}

// PageStack receives page pushes and pops, usually the store helpers.
type PageStack interface {
	PushPage(path string)
	PopPage()
}

// PageViewTracker records page views.
type PageViewTracker interface {
	TrackPageView(path string, params map[string]any)
}

// PageDeps are the collaborators WrapPage weaves into the hooks.
type PageDeps struct {
	Log     applog.CategoryLogger // PERFORMANCE or UI category
	Pages   *Pages
	Stack   PageStack
	Tracker PageViewTracker
	Debug   bool
	Now     func() time.Time
}

// WrapPage returns hooks that run the cross-cutting page logic before the
// page's own hook: load timing, page stack maintenance and page-view
// tracking. The returned hooks are always non-nil.
func WrapPage(page PageHooks, deps PageDeps) PageHooks {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = applog.Discard(applog.CategoryPerformance)
	}

	var (
		mu        sync.Mutex
		loadStart time.Time
		options   map[string]string
	)
	route := page.Route

	return PageHooks{
		Route: route,
		OnLoad: func(query map[string]string) {
			mu.Lock()
			options = query
			if deps.Debug {
				loadStart = deps.Now()
			}
			mu.Unlock()
			if deps.Debug {
				deps.Log.Debug("page load: "+route, map[string]any{"query": query})
			}
			if page.OnLoad != nil {
				page.OnLoad(query)
			}
		},
		OnReady: func() {
			mu.Lock()
			start := loadStart
			mu.Unlock()
			if deps.Debug && !start.IsZero() {
				elapsed := deps.Now().Sub(start)
				deps.Log.Info("page "+route+" loaded", map[string]any{"loadTimeMs": elapsed.Milliseconds()})
			}
			if page.OnReady != nil {
				page.OnReady()
			}
		},
		OnShow: func() {
			mu.Lock()
			opts := options
			mu.Unlock()
			if deps.Pages != nil {
				deps.Pages.Show(route, opts)
			}
			if deps.Stack != nil {
				deps.Stack.PushPage(route)
			}
			if deps.Debug {
				deps.Log.Debug("page show: "+route, nil)
			}
			trackPageView(deps, route, opts)
			if page.OnShow != nil {
				page.OnShow()
			}
		},
		OnHide: func() {
			if deps.Debug {
				deps.Log.Debug("page hide: "+route, nil)
			}
			if page.OnHide != nil {
				page.OnHide()
			}
		},
		OnUnload: func() {
			if deps.Stack != nil {
				deps.Stack.PopPage()
			}
			if deps.Pages != nil {
				deps.Pages.Unload(route)
			}
			if deps.Debug {
				deps.Log.Debug("page unload: "+route, nil)
			}
			if page.OnUnload != nil {
				page.OnUnload()
			}
		},
	}
}

// trackPageView never lets a tracker failure reach the page.
func trackPageView(deps PageDeps, route string, options map[string]string) {
	if deps.Tracker == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			deps.Log.Warn("page view tracking failed", map[string]any{"route": route, "panic": r})
		}
	}()
	opts := options
	if opts == nil {
		opts = map[string]string{}
	}
	deps.Tracker.TrackPageView("/"+strings.TrimLeft(route, "/"), map[string]any{
		"page":    route,
		"options": opts,
	})
}
