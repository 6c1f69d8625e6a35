package app

import (
	"context"
	"fmt"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/host"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin/errormonitor"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin/payment"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin/share"
	"github.com/Saisumanthklv/weapp-starter-template/internal/store"
)

// InitializeApp brings the substrate up in order: plugins, persisted state,
// error handlers, then the network listener. A second call is a no-op.
func (a *App) InitializeApp(ctx context.Context) error {
	a.mu.Lock()
	if a.initialized {
		a.mu.Unlock()
		a.Console.Warn("application already initialized")
		return nil
	}
	a.initialized = true
	a.mu.Unlock()

	a.Console.Info("initializing application")

	if a.MQTT != nil {
		if err := a.MQTT.Connect(ctx); err != nil {
			a.Console.Error("failed to connect report transport", logger.Error(err))
			a.Telemetry.CaptureError(err)
			return errors.New(err).
				Component(component).
				Category(errors.CategoryTransport).
				Context("stage", "transport").
				Build()
		}
	}

	a.InitializePlugins()
	a.Helpers.Restore()
	a.setupErrorHandlers()
	a.setupNetworkListener()
	a.setupAppVisibility()

	if a.RemoteConfig != nil {
		// Failures are logged by the fetcher and keep the local configuration.
		_ = a.RemoteConfig.Refresh(ctx)
	}

	a.Logs.Category(applog.CategoryUI).Info("application initialized", map[string]any{
		"plugins":   a.Plugins.Names(),
		"sessionId": a.Logs.SessionID(),
	})
	return nil
}

// InitializePlugins registers the bundled plugins with the registry. Only
// the first call registers; later calls log a warning.
func (a *App) InitializePlugins() {
	a.mu.Lock()
	if a.pluginsInitialized {
		a.mu.Unlock()
		a.Logs.Category(applog.CategoryPlugin).Warn("plugins already initialized", nil)
		return
	}
	a.pluginsInitialized = true
	a.mu.Unlock()

	bundled := []struct {
		name string
		p    plugin.Plugin
	}{
		{payment.Name, a.Payment},
		{share.Name, a.Share},
		{errormonitor.Name, a.ErrorMonitor},
	}
	states := make(map[string]any, len(bundled))
	for _, b := range bundled {
		state := a.Plugins.Register(b.name, b.p)
		states[b.name] = state.String()
		if state != plugin.StateActive {
			a.Console.Warn("plugin not active after registration",
				logger.String("plugin", b.name),
				logger.String("state", state.String()))
		}
	}
	a.Logs.Category(applog.CategoryPlugin).Info("plugins initialized", states)
}

func (a *App) track(unsubscribe func()) {
	a.mu.Lock()
	a.unsubscribe = append(a.unsubscribe, unsubscribe)
	a.mu.Unlock()
}

func (a *App) setupErrorHandlers() {
	errLog := a.Logs.Category(applog.CategoryError)
	a.track(a.Lifecycle.OnError(func(err error) {
		errLog.Error("app error", map[string]any{"error": err.Error()})
	}))
	a.track(a.Lifecycle.OnUnhandledRejection(func(reason any) {
		errLog.Error("unhandled rejection", map[string]any{"reason": describe(reason)})
	}))
}

func (a *App) setupNetworkListener() {
	netLog := a.Logs.Category(applog.CategoryNetwork)
	a.track(a.Lifecycle.OnNetworkStatusChange(func(status host.NetworkStatus) {
		a.Helpers.SetNetworkStatus(networkStatus(status))
		if !status.IsConnected {
			netLog.Warn("network disconnected", map[string]any{"networkType": status.NetworkType})
			return
		}
		netLog.Info("network connected", map[string]any{"networkType": status.NetworkType})
	}))

	if a.initNet != nil {
		status := store.NetworkOnline
		if a.initNet.NetworkType == "none" || !a.initNet.IsConnected {
			status = store.NetworkOffline
		}
		a.Helpers.SetNetworkStatus(status)
	}
}

func (a *App) setupAppVisibility() {
	uiLog := a.Logs.Category(applog.CategoryUI)
	a.track(a.Lifecycle.OnAppShow(func() {
		uiLog.Info("app shown", nil)
	}))
	a.track(a.Lifecycle.OnAppHide(func() {
		uiLog.Info("app hidden", nil)
	}))
}

func networkStatus(s host.NetworkStatus) string {
	if s.IsConnected {
		return store.NetworkOnline
	}
	return store.NetworkOffline
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case error:
		return x.Error()
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
