// Package plugin manages independently authored extensions and the hook bus
// they use to notify each other.
//
// A plugin is any value implementing Plugin; Init, Destroy and Category are
// optional capabilities detected by interface assertion. At registration the
// registry injects a category logger, then runs Init. A failing Init leaves
// the plugin registered in the degraded state.
package plugin

import (
	"context"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
)

// Plugin receives its category logger from the registry. The logger belongs
// to the plugin and must not be handed on.
type Plugin interface {
	SetLogger(log applog.CategoryLogger)
}

// Initializer is implemented by plugins with setup work.
type Initializer interface {
	Init() error
}

// Destroyer is implemented by plugins with teardown work.
type Destroyer interface {
	Destroy() error
}

// Categorized plugins choose their log category. Others log under their
// upper-cased registration name.
type Categorized interface {
	Category() applog.Category
}

// HookFunc observes a named hook.
type HookFunc func(ctx context.Context, data any) error

// HookTrigger dispatches a hook to its observers.
type HookTrigger interface {
	TriggerHook(ctx context.Context, name string, data any)
}

// Hook names used by the bundled plugins. The set is open.
const (
	HookPaymentSuccess  = "payment:success"
	HookPaymentFail     = "payment:fail"
	HookShareAppMessage = "share:appMessage"
	HookShareTimeline   = "share:timeline"
	HookErrorReported   = "error:reported"
)

// Base is embedded by plugins to hold the injected logger.
type Base struct {
	log applog.CategoryLogger
}

// SetLogger implements Plugin.
func (b *Base) SetLogger(log applog.CategoryLogger) {
	b.log = log
}

// Logger returns the injected logger, or a discarding one before registration.
func (b *Base) Logger() applog.CategoryLogger {
	if b.log == nil {
		return applog.Discard(applog.CategoryPlugin)
	}
	return b.log
}

// State is the lifecycle position of a registered name.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateActive
	StateDegraded
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unregistered"
	}
}
