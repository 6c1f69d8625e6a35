// Package devconsole serves the developer HTTP console: recent log entries,
// exports, buffer statistics, the store state, the plugin list and the
// Prometheus metrics.
package devconsole

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
	"github.com/Saisumanthklv/weapp-starter-template/internal/plugin"
)

const shutdownTimeout = 5 * time.Second

// StateSource exposes the store snapshot.
type StateSource interface {
	GetState() map[string]any
}

// PluginLister lists registered plugins.
type PluginLister interface {
	List() []plugin.Info
}

// Sources are the components the console reads from. Metrics may be nil.
type Sources struct {
	Logs    *applog.Logger
	State   StateSource
	Plugins PluginLister
	Metrics http.Handler
}

// Server encapsulates the Echo instance of the console.
type Server struct {
	Echo   *echo.Echo
	src    Sources
	listen string
	log    logger.Logger
}

// New creates the console and registers its routes.
func New(listen string, src Sources, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	s := &Server{
		Echo:   echo.New(),
		src:    src,
		listen: listen,
		log:    log.Module("devconsole"),
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			s.log.Debug("request", fields...)
			return nil
		},
	}))
	s.routes()
	return s
}

func (s *Server) routes() {
	logs := s.Echo.Group("/logs")
	logs.GET("/recent", s.recentLogs)
	logs.GET("/export", s.exportLogs)
	logs.GET("/stats", s.logStats)
	logs.GET("/:id/context", s.logContext)
	logs.DELETE("", s.clearLogs)

	s.Echo.GET("/state", s.state)
	s.Echo.GET("/plugins", s.plugins)
	if s.src.Metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.src.Metrics))
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("developer console listening", logger.String("address", s.listen))
		if err := s.Echo.Start(s.listen); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.New(err).
				Component("devconsole").
				Category(errors.CategoryTransport).
				Context("listen", s.listen).
				Build()
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("developer console shutdown failed", logger.Error(err))
		return err
	}
	<-errCh
	s.log.Info("developer console stopped")
	return nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be an integer")
	}
	return n, nil
}
