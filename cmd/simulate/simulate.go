// Package simulate drives a scripted session through the substrate against
// the configured endpoints and prints the resulting log statistics.
package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Saisumanthklv/weapp-starter-template/internal/app"
	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/conf"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/host"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin/payment"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin/share"
)

// Options control the scripted session.
type Options struct {
	Pages    []string
	Payments int
	Errors   int
	JSON     bool
	Timeout  time.Duration
}

// DefaultPages are visited when no --page flag is given.
var DefaultPages = []string{"pages/home/index", "pages/cart/index", "pages/profile/index"}

// Command creates the simulate command.
func Command(settings *conf.Settings) *cobra.Command {
	opts := Options{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted session and print log statistics",
		Long: "Visit pages, track events, request payments through a simulated gateway, " +
			"raise uncaught errors and flush analytics, then print the log buffer statistics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			return Run(ctx, settings, opts, app.Deps{Stdout: cmd.OutOrStdout()}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&opts.Pages, "page", DefaultPages, "Page routes to visit, in order")
	cmd.Flags().IntVar(&opts.Payments, "payments", 2, "Number of back-to-back payment requests")
	cmd.Flags().IntVar(&opts.Errors, "errors", 1, "Number of uncaught errors to raise")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print statistics as JSON instead of YAML")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Overall time limit")
	return cmd
}

// SimulatedGateway approves every payment.
var SimulatedGateway = payment.GatewayFunc(func(_ context.Context, req payment.Request) (payment.Result, error) {
	return payment.Result{OrderID: req.OrderID, ErrMsg: "requestPayment:ok"}, nil
})

// Run executes the session and writes the statistics to out.
func Run(ctx context.Context, settings *conf.Settings, opts Options, deps app.Deps, out io.Writer) error {
	if deps.Gateway == nil {
		deps.Gateway = SimulatedGateway
	}
	a, err := app.New(settings, deps)
	if err != nil {
		return err
	}
	if err := a.InitializeApp(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return err
	}

	a.Lifecycle.EmitAppShow()
	var current host.PageHooks
	for i, route := range opts.Pages {
		current = a.WrapPage(host.PageHooks{Route: route})
		current.OnLoad(map[string]string{"from": "simulate"})
		current.OnReady()
		current.OnShow()
		// the last page stays open for the share and error steps
		if i < len(opts.Pages)-1 {
			current.OnHide()
			current.OnUnload()
		}
	}

	a.Analytics.TrackEvent("simulate_checkout", map[string]any{"payments": opts.Payments})
	for i := range opts.Payments {
		req := payment.Request{
			OrderID:     fmt.Sprintf("sim-%d-%s", i+1, uuid.NewString()[:8]),
			TimeStamp:   fmt.Sprint(time.Now().Unix()),
			NonceStr:    uuid.NewString(),
			Package:     "prepay_id=simulated",
			SignType:    "RSA",
			SkipConfirm: true,
		}
		if _, err := a.Payment.RequestPayment(ctx, req); err != nil {
			a.Console.Info(fmt.Sprintf("payment %s: %s", req.OrderID, payment.ErrMsg(err)))
		}
	}

	if handlers, ok := a.Share.SetShareInfo(share.Card{Title: "Simulated share"}); ok {
		handlers.AppMessage(ctx)
		handlers.Timeline(ctx)
	}

	for i := range opts.Errors {
		a.Lifecycle.EmitError(errors.Newf("simulated failure %d", i+1).
			Component("simulate").
			Category(errors.CategoryGeneric).
			Build())
	}
	if len(opts.Pages) > 0 {
		current.OnHide()
		current.OnUnload()
	}
	a.Lifecycle.EmitAppHide()

	if _, err := a.Analytics.Flush(ctx); err != nil {
		a.Logs.Category(applog.CategoryAnalytics).Warn("analytics flush failed", map[string]any{"error": err.Error()})
	}

	stats := a.Logs.GetStats()
	shutdownErr := a.Shutdown(ctx)
	if err := writeStats(out, stats, opts.JSON); err != nil {
		return err
	}
	return shutdownErr
}

type statsView struct {
	SessionID  string         `json:"sessionId" yaml:"sessionId"`
	Total      int            `json:"total" yaml:"total"`
	ByLevel    map[string]int `json:"byLevel" yaml:"byLevel"`
	ByCategory map[string]int `json:"byCategory" yaml:"byCategory"`
	Duration   string         `json:"duration" yaml:"duration"`
}

func writeStats(out io.Writer, s applog.Stats, asJSON bool) error {
	view := statsView{
		SessionID:  s.SessionID,
		Total:      s.Total,
		ByLevel:    s.ByLevel,
		ByCategory: s.ByCategory,
		Duration:   s.Duration.Round(time.Millisecond).String(),
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}
