package devconsole

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
)

// recentLogs handles GET /logs/recent?n=
func (s *Server) recentLogs(c echo.Context) error {
	n, err := queryInt(c, "n", applog.DefaultRecentCount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.src.Logs.GetRecent(n))
}

// exportLogs handles GET /logs/export?n=
func (s *Server) exportLogs(c echo.Context) error {
	n, err := queryInt(c, "n", applog.DefaultRecentCount)
	if err != nil {
		return err
	}
	data, err := s.src.Logs.ExportRecent(n)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	filename := fmt.Sprintf("logs-%s.json", s.src.Logs.SessionID())
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

func (s *Server) logStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.src.Logs.GetStats())
}

// logContext handles GET /logs/:id/context?window=
func (s *Server) logContext(c echo.Context) error {
	window, err := queryInt(c, "window", applog.DefaultContextWindow)
	if err != nil {
		return err
	}
	lc, ok := s.src.Logs.GetLogContext(c.Param("id"), window)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "log entry not found")
	}
	return c.JSON(http.StatusOK, lc)
}

func (s *Server) clearLogs(c echo.Context) error {
	s.src.Logs.Clear()
	s.log.Info("log buffer cleared from console")
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) state(c echo.Context) error {
	if s.src.State == nil {
		return c.JSON(http.StatusOK, map[string]any{})
	}
	return c.JSON(http.StatusOK, s.src.State.GetState())
}

func (s *Server) plugins(c echo.Context) error {
	if s.src.Plugins == nil {
		return c.JSON(http.StatusOK, []any{})
	}
	return c.JSON(http.StatusOK, s.src.Plugins.List())
}
