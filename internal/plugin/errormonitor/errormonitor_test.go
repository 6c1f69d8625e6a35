package errormonitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/host"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin"
	"github.com/Saisumanthklv/weapp-starter-template/internal/sysinfo"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type flakySender struct {
	mu        sync.Mutex
	failures  int
	endpoints []string
	reports   []Report
}

func (s *flakySender) Send(_ context.Context, endpoint string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.NewStd("network down")
	}
	s.endpoints = append(s.endpoints, endpoint)
	s.reports = append(s.reports, payload.(Report))
	return nil
}

type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (d *delayRecorder) sleep(_ context.Context, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays = append(d.delays, delay)
	return nil
}

type staticDevice struct{}

func (staticDevice) Info() sysinfo.DeviceInfo {
	return sysinfo.DeviceInfo{Platform: "devtools", Model: "simulator", Version: "1.0.0"}
}

type fixture struct {
	plugin    *Plugin
	registry  *plugin.Registry
	lifecycle *host.Lifecycle
	pages     *host.Pages
	sender    *flakySender
	delays    *delayRecorder
	logs      *applog.Logger
}

func newFixture(t *testing.T, failures int, opts ...Option) *fixture {
	t.Helper()
	logs := applog.New()
	t.Cleanup(logs.Close)

	f := &fixture{
		registry:  plugin.NewRegistry(logs),
		lifecycle: host.NewLifecycle(logger.NewDiscardLogger()),
		pages:     host.NewPages(),
		sender:    &flakySender{failures: failures},
		delays:    &delayRecorder{},
		logs:      logs,
	}
	base := []Option{
		WithSource(f.lifecycle),
		WithPages(f.pages),
		WithDevice(staticDevice{}),
		WithSleeper(f.delays.sleep),
		WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) }),
	}
	f.plugin = New(Config{}, f.sender, f.registry, append(base, opts...)...)
	require.Equal(t, plugin.StateActive, f.registry.Register(Name, f.plugin))
	t.Cleanup(f.registry.UnregisterAll)
	return f
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.plugin.Wait(ctx))
}

func TestUncaughtErrorIsReported(t *testing.T) {
	f := newFixture(t, 0)
	f.pages.Show("src/pages/order/index", nil)

	var hooked []Report
	f.registry.AddHook(plugin.HookErrorReported, func(_ context.Context, data any) error {
		hooked = append(hooked, data.(Report))
		return nil
	})

	f.lifecycle.EmitError(&host.PanicError{Value: "index out of range", StackTrace: "goroutine 1 [running]"})
	f.wait(t)

	require.Len(t, f.sender.reports, 1)
	r := f.sender.reports[0]
	assert.Equal(t, DefaultEndpoint, f.sender.endpoints[0])
	assert.Equal(t, KindAppError, r.Type)
	assert.Equal(t, "panic: index out of range", r.Message)
	assert.Equal(t, "goroutine 1 [running]", r.Stack)
	assert.Equal(t, int64(1_700_000_000_000), r.Timestamp)
	assert.Equal(t, "src/pages/order/index", r.Page)
	assert.Equal(t, "simulator", r.UserAgent.Model)
	assert.Equal(t, []Report{r}, hooked)

	var delivered bool
	for _, e := range f.logs.GetRecent(0) {
		if e.Message == "error report delivered" {
			delivered = true
			assert.Equal(t, applog.CategoryError, e.Category)
		}
	}
	assert.True(t, delivered)
}

func TestUnhandledRejectionWithoutPage(t *testing.T) {
	f := newFixture(t, 0)

	f.lifecycle.EmitUnhandledRejection("request timeout")
	f.wait(t)

	require.Len(t, f.sender.reports, 1)
	assert.Equal(t, KindUnhandledRejection, f.sender.reports[0].Type)
	assert.Equal(t, "request timeout", f.sender.reports[0].Message)
	assert.Equal(t, UnknownPage, f.sender.reports[0].Page)
	assert.Empty(t, f.sender.reports[0].Stack)
}

func TestRetriesWithBackoffThenDelivers(t *testing.T) {
	f := newFixture(t, 2)

	f.plugin.ReportError(KindAppError, errors.NewStd("boom"))
	f.wait(t)

	require.Len(t, f.sender.reports, 1)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, f.delays.delays)
	assert.Equal(t, 2, f.logs.GetStats().ByLevel["WARN"])
}

func TestDropAfterMaxRetries(t *testing.T) {
	var droppedReport Report
	f := newFixture(t, 100, WithDropHandler(func(r Report, _ error) { droppedReport = r }))

	f.plugin.ReportError(KindAppError, errors.NewStd("boom"))
	f.wait(t)

	assert.Empty(t, f.sender.reports)
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
	}, f.delays.delays)
	assert.Equal(t, "boom", droppedReport.Message)

	var dropLog *applog.Entry
	for _, e := range f.logs.GetRecent(0) {
		if e.Message == "error report dropped after final retry" {
			dropLog = &e
		}
	}
	require.NotNil(t, dropLog)
	assert.Equal(t, applog.LevelError, dropLog.Level)
	assert.Equal(t, "boom", dropLog.Data.(map[string]any)["message"])
}

func TestDestroyUnsubscribes(t *testing.T) {
	f := newFixture(t, 0)
	assert.Equal(t, 2, f.lifecycle.ListenerCount())

	require.True(t, f.registry.Unregister(Name))
	assert.Equal(t, 0, f.lifecycle.ListenerCount())

	f.plugin.ReportError(KindAppError, errors.NewStd("late"))
	assert.Equal(t, 0, f.plugin.Pending())
	assert.Empty(t, f.sender.reports)
}

func TestInitWithoutSenderDegrades(t *testing.T) {
	logs := applog.New()
	defer logs.Close()
	reg := plugin.NewRegistry(logs)

	p := New(Config{}, nil, reg)
	assert.Equal(t, plugin.StateDegraded, reg.Register(Name, p))
	p.ReportError(KindAppError, "ignored")
	assert.Equal(t, 0, p.Pending())
}
