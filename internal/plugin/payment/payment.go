// Package payment guards payment requests against double submission and asks
// the user for confirmation before handing them to the host payment gateway.
package payment

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin"
	"github.com/Saisumanthklv/weapp-starter-template/internal/transport"
)

// Name is the registration name.
const Name = "wxPay"

// DefaultMinInterval separates two payment starts.
const DefaultMinInterval = 1500 * time.Millisecond

// Host error messages reported to callers.
const (
	ErrMsgThrottled = "requestPayment:throttled"
	ErrMsgCancel    = "requestPayment:cancel"
	ErrMsgFail      = "requestPayment:fail"
)

// Request carries the signed parameters the gateway needs.
type Request struct {
	OrderID   string `json:"orderId"`
	TimeStamp string `json:"timeStamp"`
	NonceStr  string `json:"nonceStr"`
	Package   string `json:"package"`
	SignType  string `json:"signType"`
	PaySign   string `json:"paySign"`

	// SkipConfirm bypasses the confirmation prompt for this request.
	SkipConfirm bool `json:"-"`
}

// Result is what the gateway reports on success.
type Result struct {
	OrderID string `json:"orderId"`
	ErrMsg  string `json:"errMsg"`
}

// Gateway performs the payment.
type Gateway interface {
	Pay(ctx context.Context, req Request) (Result, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, req Request) (Result, error)

func (f GatewayFunc) Pay(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// Confirmer asks the user to confirm a payment. Returning an error counts as
// a decline.
type Confirmer interface {
	Confirm(ctx context.Context, req Request) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, req Request) (bool, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, req Request) (bool, error) { return f(ctx, req) }

// Config controls throttling and confirmation.
type Config struct {
	ConfirmEnabled bool
	MinInterval    time.Duration
}

// Plugin is the payment plugin
type Plugin struct {
	plugin.Base

	cfg       Config
	gateway   Gateway
	confirmer Confirmer
	hooks     plugin.HookTrigger
	fetcher   transport.Fetcher
	now       func() time.Time

	mu      sync.Mutex
	paying  bool
	limiter *rate.Limiter
}

type noHooks struct{}

func (noHooks) TriggerHook(context.Context, string, any) {}

// Option configures the plugin.
type Option func(*Plugin)

// WithConfirmer sets the confirmation prompt.
func WithConfirmer(c Confirmer) Option { return func(p *Plugin) { p.confirmer = c } }

// WithFetcher sets the API used by QueryPayment.
func WithFetcher(f transport.Fetcher) Option { return func(p *Plugin) { p.fetcher = f } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(p *Plugin) { p.now = now } }

// New creates the plugin. hooks receives payment:success and payment:fail.
func New(cfg Config, gateway Gateway, hooks plugin.HookTrigger, opts ...Option) *Plugin {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if hooks == nil {
		hooks = noHooks{}
	}
	p := &Plugin{cfg: cfg, gateway: gateway, hooks: hooks, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	p.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	return p
}

// Category implements plugin.Categorized.
func (p *Plugin) Category() applog.Category { return applog.CategoryPay }

// Init implements plugin.Initializer.
func (p *Plugin) Init() error {
	if p.gateway == nil {
		return errors.Newf("payment gateway is not configured").
			Component("payment").
			Category(errors.CategoryConfiguration).
			Build()
	}
	p.mu.Lock()
	p.paying = false
	p.limiter = rate.NewLimiter(rate.Every(p.cfg.MinInterval), 1)
	p.mu.Unlock()
	p.Logger().Info("payment plugin initialized", map[string]any{
		"minIntervalMs":  p.cfg.MinInterval.Milliseconds(),
		"confirmEnabled": p.cfg.ConfirmEnabled,
	})
	return nil
}

// Destroy implements plugin.Destroyer.
func (p *Plugin) Destroy() error {
	p.Logger().Info("payment plugin destroyed", nil)
	return nil
}

// RequestPayment runs one payment. It fails with ErrThrottled while another
// payment is in flight or within MinInterval of the last start, with
// ErrCancelled when the user declines the confirmation, and with
// ErrUnsupported when no gateway is configured.
func (p *Plugin) RequestPayment(ctx context.Context, req Request) (Result, error) {
	log := p.Logger()
	log.Info("payment requested", map[string]any{"orderId": req.OrderID})

	if p.gateway == nil {
		log.Error("payment gateway is not configured", map[string]any{"orderId": req.OrderID})
		p.hooks.TriggerHook(ctx, plugin.HookPaymentFail, map[string]any{
			"orderId": req.OrderID,
			"errMsg":  ErrMsgFail,
			"error":   errors.ErrUnsupported.Error(),
		})
		return Result{}, errors.New(errors.ErrUnsupported).
			Component("payment").
			Category(errors.CategoryConfiguration).
			Context("order_id", req.OrderID).
			Context("errMsg", ErrMsgFail).
			Build()
	}

	now := p.now()
	p.mu.Lock()
	if p.paying || p.limiter.TokensAt(now) < 1 {
		p.mu.Unlock()
		log.Warn("payment request throttled", map[string]any{"orderId": req.OrderID})
		return Result{}, p.fail(errors.ErrThrottled, errors.CategoryThrottled, req, ErrMsgThrottled)
	}
	p.paying = true
	p.mu.Unlock()

	if p.cfg.ConfirmEnabled && !req.SkipConfirm && p.confirmer != nil {
		ok, err := p.confirmer.Confirm(ctx, req)
		if err != nil || !ok {
			p.finish()
			log.Warn("payment confirmation declined", map[string]any{"orderId": req.OrderID})
			return Result{}, p.fail(errors.ErrCancelled, errors.CategoryCancellation, req, ErrMsgCancel)
		}
	}

	p.mu.Lock()
	p.limiter.AllowN(now, 1)
	p.mu.Unlock()
	defer p.finish()

	res, err := p.gateway.Pay(ctx, req)
	if err != nil {
		log.Error("payment failed", map[string]any{"orderId": req.OrderID, "error": err.Error()})
		p.hooks.TriggerHook(ctx, plugin.HookPaymentFail, map[string]any{
			"orderId": req.OrderID,
			"errMsg":  ErrMsgFail,
			"error":   err.Error(),
		})
		return Result{}, errors.New(err).
			Component("payment").
			Category(errors.CategoryPlugin).
			Context("order_id", req.OrderID).
			Context("errMsg", ErrMsgFail).
			Build()
	}
	if res.OrderID == "" {
		res.OrderID = req.OrderID
	}
	log.Info("payment succeeded", res)
	p.hooks.TriggerHook(ctx, plugin.HookPaymentSuccess, res)
	return res, nil
}

func (p *Plugin) finish() {
	p.mu.Lock()
	p.paying = false
	p.mu.Unlock()
}

func (p *Plugin) fail(sentinel error, category errors.ErrorCategory, req Request, errMsg string) error {
	return errors.New(sentinel).
		Component("payment").
		Category(category).
		Context("order_id", req.OrderID).
		Context("errMsg", errMsg).
		Build()
}

// QueryPayment fetches the server-side status of orderID.
func (p *Plugin) QueryPayment(ctx context.Context, orderID string) (map[string]any, error) {
	p.Logger().Info("querying payment", map[string]any{"orderId": orderID})
	if p.fetcher == nil {
		return nil, errors.New(errors.ErrUnsupported).
			Component("payment").
			Category(errors.CategoryConfiguration).
			Context("operation", "query_payment").
			Build()
	}
	var out map[string]any
	if err := p.fetcher.Fetch(ctx, "/payment/query/"+url.PathEscape(orderID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ErrMsg maps a RequestPayment error onto the host error message.
func ErrMsg(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errors.ErrThrottled):
		return ErrMsgThrottled
	case errors.Is(err, errors.ErrCancelled):
		return ErrMsgCancel
	default:
		return ErrMsgFail
	}
}
