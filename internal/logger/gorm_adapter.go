package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// GormAdapter routes GORM logging into a module logger. SQL statements are logged
// at TRACE, slow statements and failed statements at WARN.
type GormAdapter struct {
	logger        Logger
	slowThreshold time.Duration
}

// NewGormAdapter returns a GORM logger backed by l. A zero slowThreshold disables
// slow statement warnings.
func NewGormAdapter(l Logger, slowThreshold time.Duration) *GormAdapter {
	if l == nil {
		l = Global().Module("gorm")
	}
	return &GormAdapter{logger: l, slowThreshold: slowThreshold}
}

// LogMode returns the adapter unchanged; levels come from the central logger.
func (a *GormAdapter) LogMode(_ gorm_logger.LogLevel) gorm_logger.Interface {
	return a
}

// Info logs at DEBUG.
func (a *GormAdapter) Info(_ context.Context, msg string, data ...any) {
	a.logger.Debug(fmt.Sprintf(msg, data...))
}

// Warn logs at WARN.
func (a *GormAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.logger.Warn(fmt.Sprintf(msg, data...))
}

// Error logs at ERROR.
func (a *GormAdapter) Error(_ context.Context, msg string, data ...any) {
	a.logger.Error(fmt.Sprintf(msg, data...))
}

// Trace logs one executed statement.
func (a *GormAdapter) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		a.logger.Warn("query error",
			String("sql", sql),
			Int64("rows_affected", rows),
			Duration("elapsed", elapsed),
			Error(err))
	case a.slowThreshold > 0 && elapsed > a.slowThreshold:
		a.logger.Warn("slow query",
			String("sql", sql),
			Int64("rows_affected", rows),
			Duration("elapsed", elapsed),
			Duration("threshold", a.slowThreshold))
	default:
		a.logger.Trace("sql query",
			String("sql", sql),
			Int64("rows_affected", rows),
			Duration("elapsed", elapsed))
	}
}
