package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

const telemetryFlushTimeout = 2 * time.Second

// Shutdown flushes pending uploads, waits for the report queues, destroys
// the plugins and releases the transport and the store. Pending deliveries
// that have not finished when ctx is done are abandoned.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.shutdown {
		a.mu.Unlock()
		return nil
	}
	a.shutdown = true
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	a.Console.Info("shutting down application")
	for _, fn := range unsubscribe {
		fn()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Logs.Flush(gctx)
	})
	g.Go(func() error {
		if _, err := a.Analytics.Flush(gctx); err != nil {
			return err
		}
		return a.Analytics.Wait(gctx)
	})
	g.Go(func() error {
		return a.ErrorMonitor.Wait(gctx)
	})
	err := g.Wait()
	if err != nil {
		a.Console.Warn("pending deliveries abandoned at shutdown", logger.Error(err))
	}

	a.Plugins.UnregisterAll()
	a.Analytics.Close()
	a.Logs.Close()
	a.Lifecycle.Wait()
	a.Alerts.Close()
	a.Telemetry.Flush(telemetryFlushTimeout)

	if cerr := a.Transport.Close(); cerr != nil {
		a.Console.Warn("failed to close transport", logger.Error(cerr))
	}
	if a.closeKV != nil {
		if cerr := a.closeKV(); cerr != nil {
			a.Console.Warn("failed to close key-value store", logger.Error(cerr))
		}
	}
	a.Console.Info("application stopped")
	if a.central != nil {
		_ = a.central.Close()
	}
	return err
}
