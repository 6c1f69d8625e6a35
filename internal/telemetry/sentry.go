// Package telemetry forwards delivered error reports and selected internal
// errors to Sentry after stripping identifying data.
package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin/errormonitor"
)

// Config configures the Sentry reporter
type Config struct {
	Enabled     bool
	DSN         string
	SampleRate  float64
	Environment string
	Release     string

	// Transport overrides the HTTP transport, for tests.
	Transport sentry.Transport
}

// SentryReporter captures events on a private hub so it never touches the
// global Sentry state. A disabled reporter accepts every call and does nothing.
type SentryReporter struct {
	hub *sentry.Hub
	log logger.Logger
}

// NewSentryReporter creates a reporter. It returns a disabled reporter when
// telemetry is off or no DSN is configured.
func NewSentryReporter(cfg Config, log logger.Logger) (*SentryReporter, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	r := &SentryReporter{log: log.Module("telemetry")}
	if !cfg.Enabled || cfg.DSN == "" {
		r.log.Debug("telemetry disabled")
		return r, nil
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		SampleRate:       sampleRate,
		AttachStacktrace: false,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       "",
		BeforeSend:       beforeSend,
		Transport:        cfg.Transport,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}
	r.hub = sentry.NewHub(client, sentry.NewScope())
	r.log.Info("telemetry enabled", logger.String("environment", cfg.Environment))
	return r, nil
}

// Enabled reports whether events are sent.
func (r *SentryReporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// HandleReport is a plugin.HookFunc for error:reported.
func (r *SentryReporter) HandleReport(_ context.Context, data any) error {
	if !r.Enabled() {
		return nil
	}
	report, ok := data.(errormonitor.Report)
	if !ok {
		return errors.Newf("unexpected error report payload %T", data).
			Component("telemetry").
			Category(errors.CategoryValidation).
			Build()
	}

	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	event.Message = report.Message
	event.Timestamp = time.UnixMilli(report.Timestamp)
	event.Tags = map[string]string{
		"type":     report.Type,
		"page":     report.Page,
		"platform": report.UserAgent.Platform,
	}
	event.Extra = map[string]any{
		"error_type": report.Type,
		"component":  "errormonitor",
	}
	event.Fingerprint = []string{report.Type, report.Message}
	if report.Stack != "" {
		event.Extra["stack"] = report.Stack
	}
	r.hub.CaptureEvent(event)
	return nil
}

// CaptureError sends err with its component and category as tags.
func (r *SentryReporter) CaptureError(err error) {
	if !r.Enabled() || err == nil {
		return
	}
	component, category := errors.ComponentUnknown, string(errors.CategoryGeneric)
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		component, category = ee.Component, string(ee.Category)
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetTag("category", category)
		r.hub.CaptureException(err)
	})
}

// Flush waits up to timeout for buffered events to be sent.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}

// beforeSend strips identifying data from every outgoing event.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		switch k {
		case "error_type", "component", "stack":
		default:
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
