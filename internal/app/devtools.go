package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
)

// PrintRecentLogs writes the last n entries to stdout, one per line, and
// returns them. n <= 0 means the default of 100.
func (a *App) PrintRecentLogs(n int) []applog.Entry {
	recent := a.Logs.GetRecent(n)
	fmt.Fprintf(a.stdout, "[DEV] last %d log entries:\n", len(recent))
	for _, e := range recent {
		fmt.Fprintf(a.stdout, "%s [%s] [%s] %s\n", e.FormattedTime(), e.Level, e.Category, e.Message)
	}
	return recent
}

// ExportRecentLogs returns the last n entries as an export document.
func (a *App) ExportRecentLogs(n int) ([]byte, error) {
	return a.Logs.ExportRecent(n)
}

// ExportRecentLogsToFile writes the export document for the last n entries
// to path on fs, creating parent directories.
func (a *App) ExportRecentLogsToFile(fs afero.Fs, path string, n int) error {
	data, err := a.ExportRecentLogs(n)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component(component).
				Category(errors.CategoryStorage).
				Context("path", path).
				Build()
		}
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return errors.New(err).
			Component(component).
			Category(errors.CategoryStorage).
			Context("path", path).
			Build()
	}
	return nil
}
