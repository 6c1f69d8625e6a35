// Package errormonitor turns uncaught errors raised by the host into error
// reports and delivers them through a retry queue.
package errormonitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/observability/metrics"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin"
	"github.com/Saisumanthklv/weapp-starter-template/internal/retryqueue"
	"github.com/Saisumanthklv/weapp-starter-template/internal/sysinfo"
	"github.com/Saisumanthklv/weapp-starter-template/internal/transport"
)

// Name is the registration name.
const Name = "errorMonitor"

// DefaultEndpoint receives error reports.
const DefaultEndpoint = "/error/report"

// Report kinds.
const (
	KindAppError           = "app_error"
	KindUnhandledRejection = "unhandled_rejection"
)

// UnknownPage is reported when no page is current.
const UnknownPage = "unknown"

// Report is one error report as posted to the backend.
type Report struct {
	Type      string             `json:"type"`
	Message   string             `json:"message"`
	Stack     string             `json:"stack"`
	Timestamp int64              `json:"timestamp"`
	Page      string             `json:"page"`
	UserAgent sysinfo.DeviceInfo `json:"userAgent"`
}

// ErrorSource raises uncaught errors; host.Lifecycle implements it.
type ErrorSource interface {
	OnError(fn func(error)) func()
	OnUnhandledRejection(fn func(any)) func()
}

// Config sets the endpoint and the retry policy.
type Config struct {
	Endpoint   string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     bool
}

// Plugin is the error monitor plugin
type Plugin struct {
	plugin.Base

	cfg     Config
	sender  transport.Sender
	source  ErrorSource
	pages   applog.PageContextProvider
	device  transport.DeviceSource
	hooks   plugin.HookTrigger
	metrics *metrics.QueueMetrics
	sleeper retryqueue.Sleeper
	onDrop  func(Report, error)
	now     func() time.Time

	mu          sync.Mutex
	queue       *retryqueue.Queue[Report]
	unsubscribe []func()
}

// Option configures the plugin.
type Option func(*Plugin)

// WithSource subscribes the plugin to uncaught errors on Init.
func WithSource(s ErrorSource) Option { return func(p *Plugin) { p.source = s } }

// WithPages sets the provider of the current page.
func WithPages(pages applog.PageContextProvider) Option { return func(p *Plugin) { p.pages = pages } }

// WithDevice sets the provider of the userAgent field.
func WithDevice(d transport.DeviceSource) Option { return func(p *Plugin) { p.device = d } }

// WithMetrics records queue metrics.
func WithMetrics(m *metrics.QueueMetrics) Option { return func(p *Plugin) { p.metrics = m } }

// WithSleeper replaces the backoff sleep, for tests.
func WithSleeper(s retryqueue.Sleeper) Option { return func(p *Plugin) { p.sleeper = s } }

// WithDropHandler is called for each report dropped after the final retry.
func WithDropHandler(fn func(Report, error)) Option { return func(p *Plugin) { p.onDrop = fn } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(p *Plugin) { p.now = now } }

// New creates the plugin. Reports are delivered through sender; hooks
// receives error:reported after each delivery.
func New(cfg Config, sender transport.Sender, hooks plugin.HookTrigger, opts ...Option) *Plugin {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	p := &Plugin{cfg: cfg, sender: sender, hooks: hooks, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Category implements plugin.Categorized.
func (p *Plugin) Category() applog.Category { return applog.CategoryError }

// Init implements plugin.Initializer. It starts the report queue and
// subscribes to the error source.
func (p *Plugin) Init() error {
	if p.sender == nil {
		return errors.Newf("error report transport is not configured").
			Component("errormonitor").
			Category(errors.CategoryConfiguration).
			Build()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue != nil {
		p.queue.Close()
	}
	opts := []retryqueue.Option[Report]{
		retryqueue.WithLogger[Report](p.Logger()),
		retryqueue.WithMetrics[Report](p.metrics),
		retryqueue.WithJitter[Report](p.cfg.Jitter),
		retryqueue.WithOnDelivered(p.delivered),
		retryqueue.WithOnDropped(p.dropped),
	}
	if p.cfg.MaxRetries > 0 {
		opts = append(opts, retryqueue.WithMaxRetries[Report](p.cfg.MaxRetries))
	}
	if p.cfg.BaseDelay > 0 {
		opts = append(opts, retryqueue.WithBaseDelay[Report](p.cfg.BaseDelay))
	}
	if p.cfg.MaxDelay > 0 {
		opts = append(opts, retryqueue.WithMaxDelay[Report](p.cfg.MaxDelay))
	}
	if p.sleeper != nil {
		opts = append(opts, retryqueue.WithSleeper[Report](p.sleeper))
	}
	p.queue = retryqueue.New("errors", p.send, opts...)

	if p.source != nil {
		p.unsubscribe = append(p.unsubscribe,
			p.source.OnError(func(err error) {
				p.Logger().Error("uncaught error", map[string]any{"error": err.Error()})
				p.ReportError(KindAppError, err)
			}),
			p.source.OnUnhandledRejection(func(reason any) {
				p.Logger().Error("unhandled rejection", map[string]any{"reason": describe(reason)})
				p.ReportError(KindUnhandledRejection, reason)
			}),
		)
	}
	p.Logger().Info("error monitor initialized", nil)
	return nil
}

// Destroy implements plugin.Destroyer. Undelivered reports are discarded.
func (p *Plugin) Destroy() error {
	p.mu.Lock()
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	q := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	pending := 0
	if q != nil {
		q.Close()
		pending = q.Len()
	}
	p.Logger().Info("error monitor destroyed", map[string]any{"pendingReports": pending})
	return nil
}

// ReportError builds a report of kind for cause and queues it. cause may be
// an error, optionally carrying a Stack() string, or any other value.
func (p *Plugin) ReportError(kind string, cause any) {
	report := Report{
		Type:      kind,
		Message:   describe(cause),
		Stack:     stackOf(cause),
		Timestamp: p.now().UnixMilli(),
		Page:      p.currentPage(),
	}
	if p.device != nil {
		report.UserAgent = p.device.Info()
	}

	p.mu.Lock()
	q := p.queue
	p.mu.Unlock()
	if q == nil {
		p.Logger().Warn("error monitor is not running, report discarded", map[string]any{"type": kind})
		return
	}
	if err := q.Enqueue(report); err != nil {
		p.Logger().Warn("failed to queue error report", map[string]any{"type": kind, "error": err.Error()})
	}
}

// Pending returns the number of undelivered reports.
func (p *Plugin) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return 0
	}
	return p.queue.Len()
}

// Wait blocks until the report queue is idle or ctx is done.
func (p *Plugin) Wait(ctx context.Context) error {
	p.mu.Lock()
	q := p.queue
	p.mu.Unlock()
	if q == nil {
		return nil
	}
	return q.Wait(ctx)
}

func (p *Plugin) send(ctx context.Context, r Report) error {
	return p.sender.Send(ctx, p.cfg.Endpoint, r)
}

func (p *Plugin) delivered(item retryqueue.Item[Report]) {
	if p.hooks != nil {
		p.hooks.TriggerHook(context.Background(), plugin.HookErrorReported, item.Payload)
	}
	p.Logger().Info("error report delivered", map[string]any{
		"type": item.Payload.Type,
		"at":   item.Payload.Timestamp,
	})
}

func (p *Plugin) dropped(item retryqueue.Item[Report], err error) {
	p.Logger().Error("error report dropped after final retry", map[string]any{
		"type":    item.Payload.Type,
		"message": item.Payload.Message,
	})
	if p.onDrop != nil {
		p.onDrop(item.Payload, err)
	}
}

func (p *Plugin) currentPage() string {
	if p.pages == nil {
		return UnknownPage
	}
	if pc, ok := p.pages.CurrentPage(); ok && pc.Route != "" {
		return pc.Route
	}
	return UnknownPage
}

func describe(v any) string {
	switch e := v.(type) {
	case nil:
		return "<nil>"
	case error:
		return e.Error()
	case string:
		return e
	default:
		return fmt.Sprint(v)
	}
}

func stackOf(v any) string {
	if s, ok := v.(interface{ Stack() string }); ok {
		return s.Stack()
	}
	if err, ok := v.(error); ok {
		var s interface{ Stack() string }
		if errors.As(err, &s) {
			return s.Stack()
		}
	}
	return ""
}
