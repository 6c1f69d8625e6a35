// Package app wires the substrate together: one diagnostics logger, one
// structured event buffer, one store, one plugin registry and the bundled
// plugins, all sharing a transport and a key-value store.
package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Saisumanthklv/weapp-starter-template/internal/alert"
	"github.com/Saisumanthklv/weapp-starter-template/internal/analytics"
	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/conf"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/host"
	"github.com/Saisumanthklv/weapp-starter-template/internal/httpclient"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
	"github.com/Saisumanthklv/weapp-starter-template/internal/observability"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin/errormonitor"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin/payment"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin/share"
	"github.com/Saisumanthklv/weapp-starter-template/internal/retryqueue"
	"github.com/Saisumanthklv/weapp-starter-template/internal/storage"
	"github.com/Saisumanthklv/weapp-starter-template/internal/store"
	"github.com/Saisumanthklv/weapp-starter-template/internal/sysinfo"
	"github.com/Saisumanthklv/weapp-starter-template/internal/telemetry"
	"github.com/Saisumanthklv/weapp-starter-template/internal/transport"
)

const component = "app"

// Transport kinds accepted in settings.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// Deps are the host-provided collaborators. Every field is optional; nil
// fields are built from settings.
type Deps struct {
	Console logger.Logger
	KV      storage.KV
	Metrics *observability.Metrics

	Gateway   payment.Gateway
	Confirmer payment.Confirmer

	HTTPClient        *httpclient.Client
	MQTTClientFactory transport.ClientFactory
	SysProbe          sysinfo.Probe
	AlertSender       alert.Sender
	SentryTransport   sentry.Transport

	// InitialNetwork is the network state known at launch.
	InitialNetwork *host.NetworkStatus

	Sleeper retryqueue.Sleeper
	Now     func() time.Time
	Stdout  io.Writer
}

// App is the composition root. Build it once with New.
type App struct {
	Settings *conf.Settings

	Console      logger.Logger
	KV           storage.KV
	Metrics      *observability.Metrics
	Device       *sysinfo.Provider
	Transport    transport.Transport
	HTTP         *transport.HTTPTransport // nil with the MQTT transport
	MQTT         *transport.MQTTTransport // nil with the HTTP transport
	Logs         *applog.Logger
	Plugins      *plugin.Registry
	Store        *store.Store
	Helpers      *store.Helpers
	Lifecycle    *host.Lifecycle
	Pages        *host.Pages
	Analytics    *analytics.Tracker
	Telemetry    *telemetry.SentryReporter
	Alerts       *alert.Notifier
	RemoteConfig *applog.RemoteConfigFetcher

	Payment      *payment.Plugin
	Share        *share.Plugin
	ErrorMonitor *errormonitor.Plugin

	central *logger.CentralLogger
	closeKV func() error
	stdout  io.Writer
	now     func() time.Time
	initNet *host.NetworkStatus

	mu                 sync.Mutex
	pluginsInitialized bool
	initialized        bool
	shutdown           bool
	unsubscribe        []func()
}

// New builds every component from settings. Nothing is started; call
// InitializeApp.
func New(settings *conf.Settings, deps Deps) (*App, error) {
	if settings == nil {
		return nil, errors.Newf("settings are required").
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
	a := &App{Settings: settings, stdout: deps.Stdout, now: deps.Now, initNet: deps.InitialNetwork}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.now == nil {
		a.now = time.Now
	}

	if err := a.initConsole(deps.Console); err != nil {
		return nil, err
	}
	if err := a.initKV(deps.KV); err != nil {
		return nil, err
	}

	a.Metrics = deps.Metrics
	if a.Metrics == nil {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, errors.New(err).Component(component).Category(errors.CategoryConfiguration).Build()
		}
		a.Metrics = m
	}

	a.Device = sysinfo.NewProvider(settings.Main.Version, deps.SysProbe)
	if err := a.initTransport(deps); err != nil {
		return nil, err
	}
	if err := a.initAlerts(deps.AlertSender); err != nil {
		return nil, err
	}

	a.Pages = host.NewPages()
	a.Lifecycle = host.NewLifecycle(a.Console)

	logCfg, err := appLogConfig(settings.AppLog)
	if err != nil {
		return nil, err
	}
	logOpts := []applog.Option{
		applog.WithMaxLogs(settings.AppLog.MaxLogs),
		applog.WithConfig(logCfg),
		applog.WithConsole(a.Console.Module("applog")),
		applog.WithUploader(transport.LogUploader{Sender: a.Transport}),
		applog.WithPageContext(a.Pages),
		applog.WithPersistence(a.KV),
		applog.WithMetrics(a.Metrics.AppLog),
		applog.WithClock(a.now),
	}
	if a.Alerts.Enabled() {
		logOpts = append(logOpts, applog.WithObserver(a.Alerts))
	}
	a.Logs = applog.New(logOpts...)

	if a.HTTP != nil && settings.AppLog.RemoteConfigURL != "" {
		a.RemoteConfig = applog.NewRemoteConfigFetcher(a.Logs, a.HTTP, settings.AppLog.RemoteConfigURL, a.Console)
	}

	a.Plugins = plugin.NewRegistry(a.Logs, plugin.WithMetrics(a.Metrics.Plugin))

	a.Store = store.New(
		store.WithInitialState(store.InitialState()),
		store.WithLogger(a.Logs.Category(applog.CategoryData)),
		store.WithMetrics(a.Metrics.Store),
	)
	if settings.Main.Debug {
		a.Store.Use(store.DebugMiddleware(a.Console.Module("store")))
	}
	a.Helpers = store.NewHelpers(a.Store, a.KV, a.Logs.Category(applog.CategoryData))

	a.initAnalytics(deps.Sleeper)
	if err := a.initTelemetry(deps.SentryTransport); err != nil {
		return nil, err
	}
	a.initPlugins(deps)

	a.Console.Info("application assembled",
		logger.String("environment", settings.Main.Environment),
		logger.String("transport", a.transportKind()),
		logger.Bool("debug", settings.Main.Debug))
	return a, nil
}

func (a *App) initConsole(console logger.Logger) error {
	if console != nil {
		a.Console = console
		return nil
	}
	s := a.Settings.Log
	cfg := &logger.LoggingConfig{
		DefaultLevel: s.Level,
		Timezone:     s.Timezone,
		Console:      &logger.ConsoleOutput{Enabled: s.Console, Level: s.Level},
	}
	if s.File != "" {
		cfg.FileOutput = &logger.FileOutput{Enabled: true, Path: s.File, Level: s.Level}
	}
	central, err := logger.NewCentralLogger(cfg)
	if err != nil {
		return errors.New(err).Component(component).Category(errors.CategoryConfiguration).Build()
	}
	a.central = central
	a.Console = central.Module(a.Settings.Main.Name)
	return nil
}

func (a *App) initKV(kv storage.KV) error {
	if kv != nil {
		a.KV = kv
		return nil
	}
	switch a.Settings.Storage.Driver {
	case "sqlite":
		db, err := storage.OpenSQLite(a.Settings.Storage.Path, a.Console.Module("storage"))
		if err != nil {
			return err
		}
		a.KV = db
		a.closeKV = db.Close
	default:
		a.KV = storage.NewMemoryStore()
	}
	return nil
}

func (a *App) initTransport(deps Deps) error {
	s := a.Settings
	switch s.Transport.Kind {
	case TransportMQTT:
		a.MQTT = transport.NewMQTTTransport(transport.MQTTConfig{
			Broker:      s.Transport.Broker,
			ClientID:    s.Transport.ClientID,
			Username:    s.Transport.Username,
			Password:    s.Transport.Password,
			TopicPrefix: s.Transport.TopicPrefix,
			Logger:      a.Console,
		}, deps.MQTTClientFactory)
		a.Transport = a.MQTT
	case "", TransportHTTP:
		a.HTTP = transport.NewHTTPTransport(transport.HTTPConfig{
			BaseURL: s.APIBaseURL(),
			Timeout: s.API.Timeout,
			KV:      a.KV,
			Device:  a.Device,
			Logger:  a.Console,
			Client:  deps.HTTPClient,
		})
		a.Transport = a.HTTP
	default:
		return errors.Newf("unknown transport kind %q", s.Transport.Kind).
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func (a *App) transportKind() string {
	if a.MQTT != nil {
		return TransportMQTT
	}
	return TransportHTTP
}

func (a *App) initAlerts(sender alert.Sender) error {
	minLevel := applog.LevelFatal
	if a.Settings.Alerts.MinLevel != "" {
		lvl, err := applog.ParseLevel(a.Settings.Alerts.MinLevel)
		if err != nil {
			return errors.New(err).Component(component).Category(errors.CategoryConfiguration).Build()
		}
		minLevel = lvl
	}
	cfg := alert.Config{URLs: a.Settings.Alerts.URLs, MinLevel: minLevel, AppName: a.Settings.Main.Name}
	if sender != nil {
		a.Alerts = alert.NewNotifierWithSender(sender, cfg, a.Console)
		return nil
	}
	n, err := alert.NewNotifier(cfg, a.Console)
	if err != nil {
		return err
	}
	a.Alerts = n
	return nil
}

func (a *App) queueSettings() conf.QueueSettings {
	q := a.Settings.Queue
	if q.MaxRetries <= 0 {
		q.MaxRetries = retryqueue.DefaultMaxRetries
	}
	if q.BaseDelay <= 0 {
		q.BaseDelay = retryqueue.DefaultBaseDelay
	}
	if q.MaxDelay <= 0 {
		q.MaxDelay = retryqueue.DefaultMaxDelay
	}
	return q
}

func (a *App) initAnalytics(sleeper retryqueue.Sleeper) {
	q := a.queueSettings()
	queueOpts := []retryqueue.Option[analytics.Batch]{
		retryqueue.WithMaxRetries[analytics.Batch](q.MaxRetries),
		retryqueue.WithBaseDelay[analytics.Batch](q.BaseDelay),
		retryqueue.WithMaxDelay[analytics.Batch](q.MaxDelay),
		retryqueue.WithJitter[analytics.Batch](q.Jitter),
		retryqueue.WithOnDropped(func(item retryqueue.Item[analytics.Batch], err error) {
			a.Alerts.NotifyDrop("analytics", fmt.Sprintf("%d events", len(item.Payload.Events)), err)
		}),
	}
	if sleeper != nil {
		queueOpts = append(queueOpts, retryqueue.WithSleeper[analytics.Batch](sleeper))
	}
	a.Analytics = analytics.New(a.KV,
		analytics.WithCapacity(a.Settings.Analytics.Capacity),
		analytics.WithSender(a.Transport, a.Settings.Analytics.Endpoint),
		analytics.WithLogger(a.Logs.Category(applog.CategoryAnalytics)),
		analytics.WithClock(a.now),
		analytics.WithMetrics(a.Metrics.Queue),
		analytics.WithQueueOptions(queueOpts...),
	)
}

func (a *App) initTelemetry(tr sentry.Transport) error {
	s := a.Settings
	reporter, err := telemetry.NewSentryReporter(telemetry.Config{
		Enabled:     s.Telemetry.Enabled,
		DSN:         s.Telemetry.DSN,
		SampleRate:  s.Telemetry.SampleRate,
		Environment: s.Main.Environment,
		Release:     s.Main.Name + "@" + s.Main.Version,
		Transport:   tr,
	}, a.Console)
	if err != nil {
		return err
	}
	a.Telemetry = reporter
	if reporter.Enabled() {
		a.Plugins.AddHook(plugin.HookErrorReported, reporter.HandleReport)
	}
	return nil
}

func (a *App) initPlugins(deps Deps) {
	s := a.Settings
	payOpts := []payment.Option{payment.WithClock(a.now)}
	if deps.Confirmer != nil {
		payOpts = append(payOpts, payment.WithConfirmer(deps.Confirmer))
	}
	if a.HTTP != nil {
		payOpts = append(payOpts, payment.WithFetcher(a.HTTP))
	}
	a.Payment = payment.New(payment.Config{
		ConfirmEnabled: s.Payment.ConfirmEnabled,
		MinInterval:    s.Payment.MinInterval,
	}, deps.Gateway, a.Plugins, payOpts...)

	a.Share = share.New(share.Config{
		EnableDefaultStrategy: s.Share.EnableDefaultStrategy,
		Defaults: share.Card{
			Title:    s.Share.Title,
			Path:     s.Share.Path,
			ImageURL: s.Share.ImageURL,
		},
	}, a.Pages, a.Plugins)

	q := a.queueSettings()
	monitorOpts := []errormonitor.Option{
		errormonitor.WithSource(a.Lifecycle),
		errormonitor.WithPages(a.Pages),
		errormonitor.WithDevice(a.Device),
		errormonitor.WithMetrics(a.Metrics.Queue),
		errormonitor.WithClock(a.now),
		errormonitor.WithDropHandler(func(r errormonitor.Report, err error) {
			a.Alerts.NotifyDrop("errors", r.Type+": "+r.Message, err)
		}),
	}
	if deps.Sleeper != nil {
		monitorOpts = append(monitorOpts, errormonitor.WithSleeper(deps.Sleeper))
	}
	a.ErrorMonitor = errormonitor.New(errormonitor.Config{
		MaxRetries: q.MaxRetries,
		BaseDelay:  q.BaseDelay,
		MaxDelay:   q.MaxDelay,
		Jitter:     q.Jitter,
	}, a.Transport, a.Plugins, monitorOpts...)
}

// appLogConfig converts settings into the event buffer configuration. An
// empty category list admits every category.
func appLogConfig(s conf.AppLogSettings) (applog.Config, error) {
	cfg := applog.DefaultConfig()
	if s.MinLevel != "" {
		lvl, err := applog.ParseLevel(s.MinLevel)
		if err != nil {
			return cfg, errors.New(err).Component(component).Category(errors.CategoryConfiguration).Build()
		}
		cfg.MinLevel = lvl
	}
	if s.UploadTrigger != "" {
		lvl, err := applog.ParseLevel(s.UploadTrigger)
		if err != nil {
			return cfg, errors.New(err).Component(component).Category(errors.CategoryConfiguration).Build()
		}
		cfg.UploadTriggerLevel = lvl
	}
	if len(s.Categories) > 0 {
		cfg.EnabledCategories = make([]applog.Category, 0, len(s.Categories))
		for _, c := range s.Categories {
			cfg.EnabledCategories = append(cfg.EnabledCategories, applog.Category(strings.ToUpper(strings.TrimSpace(c))))
		}
	}
	cfg.UploadURL = s.UploadURL
	if s.UploadDebounce > 0 {
		cfg.UploadDebounce = s.UploadDebounce
	}
	return cfg, nil
}

// WrapPage decorates page hooks with page-stack maintenance, load timing
// and page-view tracking.
func (a *App) WrapPage(page host.PageHooks) host.PageHooks {
	return host.WrapPage(page, host.PageDeps{
		Log:     a.Logs.Category(applog.CategoryPerformance),
		Pages:   a.Pages,
		Stack:   a.Helpers,
		Tracker: a.Analytics,
		Debug:   a.Settings.Main.Debug,
		Now:     a.now,
	})
}
