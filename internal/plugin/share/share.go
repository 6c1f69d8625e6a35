// Package share builds share cards for the current page from a default
// strategy, global defaults and page-supplied overrides.
package share

import (
	"context"
	"strings"
	"sync"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin"
)

// Name is the registration name.
const Name = "share"

// DefaultRoute is used by the default strategy when no page is current.
const DefaultRoute = "src/pages/home/index"

// DefaultTitle is the title the default strategy proposes.
const DefaultTitle = "分享标题"

// Card is a share card. Empty fields do not override during merging.
type Card struct {
	Title    string `json:"title"`
	Path     string `json:"path"`
	ImageURL string `json:"imageUrl"`
}

// TimelineCard is the moments variant, which cannot carry a path.
type TimelineCard struct {
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`
}

// Strategy proposes a base card for page.
type Strategy func(page applog.PageContext) Card

// DefaultStrategy links back to the page with a fixed title.
func DefaultStrategy(page applog.PageContext) Card {
	route := page.Route
	if route == "" {
		route = DefaultRoute
	}
	return Card{Title: DefaultTitle, Path: "/" + strings.TrimLeft(route, "/")}
}

// Config sets the initial behavior.
type Config struct {
	EnableDefaultStrategy bool
	Defaults              Card
}

// Plugin is the share plugin
type Plugin struct {
	plugin.Base

	pages applog.PageContextProvider
	hooks plugin.HookTrigger
	cfg   Config

	mu            sync.RWMutex
	strategy      Strategy
	defaults      Card
	enableDefault bool
}

// New creates the plugin; pages reports the current page.
func New(cfg Config, pages applog.PageContextProvider, hooks plugin.HookTrigger) *Plugin {
	return &Plugin{cfg: cfg, pages: pages, hooks: hooks, strategy: DefaultStrategy}
}

// Category implements plugin.Categorized.
func (p *Plugin) Category() applog.Category { return applog.CategoryShare }

// Init implements plugin.Initializer.
func (p *Plugin) Init() error {
	p.mu.Lock()
	p.strategy = DefaultStrategy
	p.defaults = p.cfg.Defaults
	p.enableDefault = p.cfg.EnableDefaultStrategy
	p.mu.Unlock()
	p.Logger().Info("share plugin initialized", nil)
	return nil
}

// Destroy implements plugin.Destroyer.
func (p *Plugin) Destroy() error {
	p.Logger().Info("share plugin destroyed", nil)
	return nil
}

// SetGlobalDefaults merges defaults into the global defaults.
func (p *Plugin) SetGlobalDefaults(defaults Card) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaults = merge(p.defaults, defaults)
}

// GlobalDefaults returns the current global defaults.
func (p *Plugin) GlobalDefaults() Card {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaults
}

// SetDefaultStrategy replaces the default strategy. A nil strategy is
// ignored with a warning.
func (p *Plugin) SetDefaultStrategy(s Strategy) {
	if s == nil {
		p.Logger().Warn("default share strategy must be a function, ignored", nil)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strategy = s
}

// Handlers answer the host's share callbacks for one page.
type Handlers struct {
	p    *Plugin
	page applog.PageContext
	info Card
}

// SetShareInfo binds info to the current page. It reports false, and
// returns nil, when no page is current.
func (p *Plugin) SetShareInfo(info Card) (*Handlers, bool) {
	if p.pages == nil {
		return nil, false
	}
	page, ok := p.pages.CurrentPage()
	if !ok {
		return nil, false
	}
	return &Handlers{p: p, page: page, info: info}, true
}

// Page returns the route the handlers are bound to.
func (h *Handlers) Page() string { return h.page.Route }

// AppMessage builds the card for sharing to a chat.
func (h *Handlers) AppMessage(ctx context.Context) Card {
	card := h.p.compose(h.page, h.info)
	h.p.Logger().Info("share to chat", card)
	h.p.trigger(ctx, plugin.HookShareAppMessage, card)
	return card
}

// Timeline builds the card for sharing to moments.
func (h *Handlers) Timeline(ctx context.Context) TimelineCard {
	card := h.p.compose(h.page, h.info)
	h.p.Logger().Info("share to timeline", card)
	h.p.trigger(ctx, plugin.HookShareTimeline, card)
	return TimelineCard{Title: card.Title, ImageURL: card.ImageURL}
}

func (p *Plugin) compose(page applog.PageContext, info Card) Card {
	p.mu.RLock()
	strategy, defaults, enabled := p.strategy, p.defaults, p.enableDefault
	p.mu.RUnlock()

	var base Card
	if enabled {
		base = p.safeStrategy(strategy, page)
	}
	return merge(merge(base, defaults), info)
}

func (p *Plugin) safeStrategy(s Strategy, page applog.PageContext) (card Card) {
	defer func() {
		if r := recover(); r != nil {
			p.Logger().Error("share strategy failed", map[string]any{"route": page.Route, "panic": r})
			card = DefaultStrategy(page)
		}
	}()
	return s(page)
}

func (p *Plugin) trigger(ctx context.Context, name string, card Card) {
	if p.hooks != nil {
		p.hooks.TriggerHook(ctx, name, card)
	}
}

func merge(base, over Card) Card {
	if over.Title != "" {
		base.Title = over.Title
	}
	if over.Path != "" {
		base.Path = over.Path
	}
	if over.ImageURL != "" {
		base.ImageURL = over.ImageURL
	}
	return base
}
