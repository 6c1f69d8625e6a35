package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin"
)

type hookRecorder struct {
	mu    sync.Mutex
	names []string
	data  []any
}

func (h *hookRecorder) TriggerHook(_ context.Context, name string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.names = append(h.names, name)
	h.data = append(h.data, data)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeFetcher struct {
	endpoint string
	body     map[string]any
}

func (f *fakeFetcher) Fetch(_ context.Context, endpoint string, out any) error {
	f.endpoint = endpoint
	*(out.(*map[string]any)) = f.body
	return nil
}

func okGateway() GatewayFunc {
	return func(_ context.Context, req Request) (Result, error) {
		return Result{ErrMsg: "requestPayment:ok"}, nil
	}
}

func newPlugin(t *testing.T, cfg Config, gw Gateway, opts ...Option) (*Plugin, *hookRecorder, *fakeClock) {
	t.Helper()
	hooks := &hookRecorder{}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	p := New(cfg, gw, hooks, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, p.Init())
	return p, hooks, clock
}

func TestRequestPaymentSuccess(t *testing.T) {
	p, hooks, _ := newPlugin(t, Config{}, okGateway())

	res, err := p.RequestPayment(t.Context(), Request{OrderID: "o-1"})
	require.NoError(t, err)
	assert.Equal(t, "o-1", res.OrderID)
	assert.Equal(t, []string{plugin.HookPaymentSuccess}, hooks.names)
	assert.Equal(t, res, hooks.data[0])
}

func TestRequestPaymentThrottlesWithinInterval(t *testing.T) {
	p, _, clock := newPlugin(t, Config{MinInterval: 1500 * time.Millisecond}, okGateway())

	_, err := p.RequestPayment(t.Context(), Request{OrderID: "o-1"})
	require.NoError(t, err)

	clock.Advance(1000 * time.Millisecond)
	_, err = p.RequestPayment(t.Context(), Request{OrderID: "o-2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrThrottled)
	assert.True(t, errors.IsCategory(err, errors.CategoryThrottled))
	assert.Equal(t, ErrMsgThrottled, ErrMsg(err))

	clock.Advance(600 * time.Millisecond)
	_, err = p.RequestPayment(t.Context(), Request{OrderID: "o-3"})
	require.NoError(t, err)
}

func TestRequestPaymentThrottlesWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	gw := GatewayFunc(func(ctx context.Context, req Request) (Result, error) {
		close(started)
		<-release
		return Result{}, nil
	})
	p, _, clock := newPlugin(t, Config{MinInterval: time.Millisecond}, gw)

	done := make(chan error, 1)
	go func() {
		_, err := p.RequestPayment(context.Background(), Request{OrderID: "slow"})
		done <- err
	}()
	<-started

	clock.Advance(time.Minute)
	_, err := p.RequestPayment(t.Context(), Request{OrderID: "tap-again"})
	assert.ErrorIs(t, err, errors.ErrThrottled)

	close(release)
	require.NoError(t, <-done)
}

func TestRequestPaymentConfirmation(t *testing.T) {
	answer := false
	var prompts int
	confirmer := ConfirmerFunc(func(context.Context, Request) (bool, error) {
		prompts++
		return answer, nil
	})
	var paid int
	gw := GatewayFunc(func(context.Context, Request) (Result, error) {
		paid++
		return Result{}, nil
	})
	p, hooks, clock := newPlugin(t, Config{ConfirmEnabled: true}, gw, WithConfirmer(confirmer))

	_, err := p.RequestPayment(t.Context(), Request{OrderID: "o-1"})
	assert.ErrorIs(t, err, errors.ErrCancelled)
	assert.Equal(t, ErrMsgCancel, ErrMsg(err))
	assert.Equal(t, 0, paid)
	assert.Empty(t, hooks.names)

	// A declined prompt does not start the throttle window.
	answer = true
	_, err = p.RequestPayment(t.Context(), Request{OrderID: "o-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, paid)

	clock.Advance(2 * time.Second)
	_, err = p.RequestPayment(t.Context(), Request{OrderID: "o-2", SkipConfirm: true})
	require.NoError(t, err)
	assert.Equal(t, 2, prompts, "SkipConfirm bypasses the prompt")
}

func TestRequestPaymentGatewayFailure(t *testing.T) {
	logs := applog.New()
	defer logs.Close()

	gw := GatewayFunc(func(context.Context, Request) (Result, error) {
		return Result{}, errors.NewStd("user closed the cashier")
	})
	p, hooks, clock := newPlugin(t, Config{}, gw)
	p.SetLogger(logs.Category(applog.CategoryPay))

	_, err := p.RequestPayment(t.Context(), Request{OrderID: "o-9"})
	require.Error(t, err)
	assert.Equal(t, ErrMsgFail, ErrMsg(err))
	assert.Equal(t, []string{plugin.HookPaymentFail}, hooks.names)
	assert.Equal(t, "o-9", hooks.data[0].(map[string]any)["orderId"])

	stats := logs.GetStats()
	assert.Equal(t, 1, stats.ByLevel["ERROR"])
	assert.Equal(t, stats.Total, stats.ByCategory["PAY"])

	// The in-flight flag is released after a failure.
	clock.Advance(2 * time.Second)
	_, err = p.RequestPayment(t.Context(), Request{OrderID: "o-10"})
	assert.NotErrorIs(t, err, errors.ErrThrottled)
}

func TestInitRequiresGateway(t *testing.T) {
	p := New(Config{}, nil, nil)
	err := p.Init()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Equal(t, applog.CategoryPay, p.Category())
}

func TestDegradedPluginRejectsPayments(t *testing.T) {
	logs := applog.New()
	defer logs.Close()
	registry := plugin.NewRegistry(logs)

	p := New(Config{}, nil, registry)
	require.Equal(t, plugin.StateDegraded, registry.Register(Name, p))

	var failed []any
	registry.AddHook(plugin.HookPaymentFail, func(_ context.Context, data any) error {
		failed = append(failed, data)
		return nil
	})

	var err error
	require.NotPanics(t, func() {
		_, err = p.RequestPayment(t.Context(), Request{OrderID: "o-1", SkipConfirm: true})
	})
	require.ErrorIs(t, err, errors.ErrUnsupported)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Equal(t, ErrMsgFail, ErrMsg(err))
	require.Len(t, failed, 1)
	assert.Equal(t, "o-1", failed[0].(map[string]any)["orderId"])

	// Nothing was left in flight.
	_, err = p.RequestPayment(t.Context(), Request{OrderID: "o-2"})
	assert.NotErrorIs(t, err, errors.ErrThrottled)
}

func TestQueryPayment(t *testing.T) {
	f := &fakeFetcher{body: map[string]any{"status": "PAID"}}
	p, _, _ := newPlugin(t, Config{}, okGateway(), WithFetcher(f))

	out, err := p.QueryPayment(t.Context(), "o 1")
	require.NoError(t, err)
	assert.Equal(t, "/payment/query/o%201", f.endpoint)
	assert.Equal(t, "PAID", out["status"])

	noFetch, _, _ := newPlugin(t, Config{}, okGateway())
	_, err = noFetch.QueryPayment(t.Context(), "o-1")
	assert.ErrorIs(t, err, errors.ErrUnsupported)
}
