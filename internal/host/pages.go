package host

import (
	"maps"
	"sync"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
)

// Pages tracks the visible page stack and answers "which page is current"
// for log entries, error reports and share cards.
type Pages struct {
	mu    sync.RWMutex
	stack []applog.PageContext
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{}
}

// Show makes route current. Re-showing the top page only refreshes its options.
func (p *Pages) Show(route string, options map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pc := applog.PageContext{Route: route, Options: maps.Clone(options)}
	if n := len(p.stack); n > 0 && p.stack[n-1].Route == route {
		p.stack[n-1] = pc
		return
	}
	p.stack = append(p.stack, pc)
}

// Unload removes route from the top of the stack, if it is there.
func (p *Pages) Unload(route string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.stack); n > 0 && p.stack[n-1].Route == route {
		p.stack = p.stack[:n-1]
	}
}

// CurrentPage implements applog.PageContextProvider.
func (p *Pages) CurrentPage() (applog.PageContext, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.stack) == 0 {
		return applog.PageContext{}, false
	}
	top := p.stack[len(p.stack)-1]
	top.Options = maps.Clone(top.Options)
	return top, true
}

// CurrentRoute returns the current route or "".
func (p *Pages) CurrentRoute() string {
	pc, _ := p.CurrentPage()
	return pc.Route
}

// Depth returns the number of pages on the stack.
func (p *Pages) Depth() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.stack)
}
