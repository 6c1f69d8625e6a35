package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

// GormLoggerAdapter routes gorm's diagnostics into a logger.Logger.
// Statements are logged at TRACE; slow statements and failures at WARN.
type GormLoggerAdapter struct {
	log           logger.Logger
	slowThreshold time.Duration
}

// NewGormLoggerAdapter creates the adapter. A zero slowThreshold disables slow statement warnings.
func NewGormLoggerAdapter(log logger.Logger, slowThreshold time.Duration) *GormLoggerAdapter {
	return &GormLoggerAdapter{log: log, slowThreshold: slowThreshold}
}

// LogMode is a no-op; levels come from the diagnostics logger configuration.
func (a *GormLoggerAdapter) LogMode(_ gormlogger.LogLevel) gormlogger.Interface {
	return a
}

func (a *GormLoggerAdapter) Info(_ context.Context, msg string, data ...any) {
	a.log.Debug(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.log.Warn(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Error(_ context.Context, msg string, data ...any) {
	a.log.Error(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		a.log.Warn("kv statement failed",
			logger.String("sql", sql),
			logger.Int64("rows_affected", rows),
			logger.Error(err))
	case a.slowThreshold > 0 && elapsed > a.slowThreshold:
		a.log.Warn("slow kv statement",
			logger.String("sql", sql),
			logger.Duration("elapsed", elapsed))
	default:
		a.log.Trace("kv statement",
			logger.String("sql", sql),
			logger.Int64("rows_affected", rows))
	}
}
