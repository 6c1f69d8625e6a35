package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Saisumanthklv/weapp-starter-template/internal/app"
	"github.com/Saisumanthklv/weapp-starter-template/internal/conf"
	"github.com/Saisumanthklv/weapp-starter-template/internal/devconsole"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Command creates the run command: boot the substrate and serve the
// developer console until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		listen  string
		console bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the substrate and serve the developer console",
		Long:  "Initialize plugins, state and transports, then serve the developer console until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				settings.DevConsole.Listen = listen
			}
			if cmd.Flags().Changed("console") {
				settings.DevConsole.Enabled = console
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings, app.Deps{})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Developer console listen address")
	cmd.Flags().BoolVar(&console, "console", false, "Serve the developer console")
	return cmd
}

// Run initializes the application and blocks until ctx is done.
func Run(ctx context.Context, settings *conf.Settings, deps app.Deps) error {
	a, err := app.New(settings, deps)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			a.Console.Warn("shutdown incomplete", logger.Error(err))
		}
	}()

	if err := a.InitializeApp(ctx); err != nil {
		return err
	}

	if !settings.DevConsole.Enabled {
		a.Console.Info("running; developer console disabled")
		<-ctx.Done()
		return nil
	}
	srv := devconsole.New(settings.DevConsole.Listen, devconsole.Sources{
		Logs:    a.Logs,
		State:   a.Store,
		Plugins: a.Plugins,
		Metrics: a.Metrics.Handler(),
	}, a.Console)
	return srv.Start(ctx)
}
