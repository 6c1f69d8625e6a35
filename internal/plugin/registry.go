package plugin

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/observability/metrics"
)

// LoggerFactory creates category loggers. *applog.Logger implements it.
type LoggerFactory interface {
	Category(c applog.Category) applog.CategoryLogger
}

type registration struct {
	plugin   Plugin
	category applog.Category
	state    State
}

// Info describes one registered plugin.
type Info struct {
	Name     string          `json:"name"`
	Category applog.Category `json:"category"`
	State    string          `json:"state"`
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*registration
	order   []string
	retired map[string]struct{}
	hooks   map[string][]HookFunc

	loggers LoggerFactory
	core    applog.CategoryLogger
	metrics *metrics.PluginMetrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics attaches Prometheus recorders.
func WithMetrics(m *metrics.PluginMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry. The registry's own messages use the
// PLUGIN category.
func NewRegistry(loggers LoggerFactory, opts ...Option) *Registry {
	r := &Registry{
		plugins: make(map[string]*registration),
		retired: make(map[string]struct{}),
		hooks:   make(map[string][]HookFunc),
		loggers: loggers,
	}
	r.core = r.categoryLogger(applog.CategoryPlugin)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) categoryLogger(c applog.Category) applog.CategoryLogger {
	if r.loggers == nil {
		return applog.Discard(c)
	}
	return r.loggers.Category(c)
}

// Register adds p under name, replacing any earlier registration with a
// warning. The replaced plugin is not destroyed. Init failures and panics
// are logged and leave p degraded.
func (r *Registry) Register(name string, p Plugin) State {
	category := applog.Category(strings.ToUpper(name))
	if c, ok := p.(Categorized); ok && c.Category() != "" {
		category = c.Category()
	}
	log := r.categoryLogger(category)
	p.SetLogger(log)

	reg := &registration{plugin: p, category: category, state: StateRegistered}

	r.mu.Lock()
	_, exists := r.plugins[name]
	r.plugins[name] = reg
	if !exists {
		r.order = append(r.order, name)
	}
	delete(r.retired, name)
	count := len(r.plugins)
	r.mu.Unlock()

	r.metrics.SetRegistered(count)
	if exists {
		log.Warn(fmt.Sprintf("plugin %s already registered, overwriting", name), nil)
		r.metrics.RecordLifecycle(name, "overwritten")
	}
	r.metrics.RecordLifecycle(name, "registered")

	state := StateActive
	if init, ok := p.(Initializer); ok {
		if err := safeCall(init.Init, "plugin.init", errors.CategoryPlugin); err != nil {
			state = StateDegraded
			log.Error(fmt.Sprintf("plugin %s failed to initialize", name), map[string]any{"error": err.Error()})
			r.metrics.RecordLifecycle(name, "init_failed")
		} else {
			log.Info(fmt.Sprintf("plugin %s registered", name), nil)
		}
	}

	r.mu.Lock()
	if r.plugins[name] == reg {
		reg.state = state
	}
	r.mu.Unlock()
	return state
}

// Unregister destroys and removes name. It reports false if name is not
// registered. Destroy failures are logged and removal proceeds.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	reg, ok := r.plugins[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.plugins, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	r.retired[name] = struct{}{}
	reg.state = StateDestroyed
	count := len(r.plugins)
	r.mu.Unlock()

	r.metrics.SetRegistered(count)
	if d, ok := reg.plugin.(Destroyer); ok {
		if err := safeCall(d.Destroy, "plugin.destroy", errors.CategoryPlugin); err != nil {
			r.core.Error(fmt.Sprintf("plugin %s failed to destroy", name), map[string]any{"error": err.Error()})
			r.metrics.RecordLifecycle(name, "destroy_failed")
		} else {
			r.core.Info(fmt.Sprintf("plugin %s unregistered", name), nil)
		}
	}
	r.metrics.RecordLifecycle(name, "destroyed")
	return true
}

// UnregisterAll destroys every plugin in reverse registration order.
func (r *Registry) UnregisterAll() {
	r.mu.RLock()
	names := slices.Clone(r.order)
	r.mu.RUnlock()

	slices.Reverse(names)
	for _, name := range names {
		r.Unregister(name)
	}
}

// Get returns the plugin registered under name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.plugins[name]
	if !ok {
		return nil, false
	}
	return reg.plugin, true
}

// State returns the lifecycle state of name.
func (r *Registry) State(name string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.plugins[name]; ok {
		return reg.state
	}
	if _, ok := r.retired[name]; ok {
		return StateDestroyed
	}
	return StateUnregistered
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// List describes every registered plugin in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		reg := r.plugins[name]
		out = append(out, Info{Name: name, Category: reg.category, State: reg.state.String()})
	}
	return out
}

// AddHook appends fn to the observers of name. Duplicates are kept.
func (r *Registry) AddHook(name string, fn HookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[name] = append(r.hooks[name], fn)
}

// HookCount returns the number of observers of name.
func (r *Registry) HookCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[name])
}

// TriggerHook runs every observer of name sequentially in registration
// order. A failing or panicking observer is logged and the rest still run.
// Observers added during dispatch are not called until the next trigger.
func (r *Registry) TriggerHook(ctx context.Context, name string, data any) {
	r.mu.RLock()
	callbacks := slices.Clone(r.hooks[name])
	r.mu.RUnlock()

	for i, fn := range callbacks {
		err := safeCall(func() error { return fn(ctx, data) }, "hook", errors.CategoryHook)
		r.metrics.RecordHook(name, err != nil)
		if err != nil {
			r.core.Error(fmt.Sprintf("hook %s failed", name), map[string]any{
				"index": i,
				"error": err.Error(),
			})
		}
	}
}

func safeCall(fn func() error, component string, category errors.ErrorCategory) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Recovered(rec, component, category)
		}
	}()
	if err := fn(); err != nil {
		return errors.New(err).Component(component).Category(category).Build()
	}
	return nil
}
