package gormsqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Logger routes GORM's query log into logrus. Queries are logged at trace
// level, slow ones as warnings and failures as errors. Record-not-found is
// not an error here.
type Logger struct {
	log           *logrus.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
}

var _ logger.Interface = (*Logger)(nil)

func NewLogger(log *logrus.Logger, slowThreshold time.Duration) *Logger {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Logger{log: log, level: logger.Warn, slowThreshold: slowThreshold}
}

func (l *Logger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *Logger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.log.WithContext(ctx).Infof(msg, args...)
	}
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.log.WithContext(ctx).Warnf(msg, args...)
	}
}

func (l *Logger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.log.WithContext(ctx).Errorf(msg, args...)
	}
}

func (l *Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		l.entry(ctx, sql, rows, elapsed).WithError(err).Error("gorm query failed")
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		l.entry(ctx, sql, rows, elapsed).Warn(fmt.Sprintf("slow query >= %v", l.slowThreshold))
	case l.level >= logger.Info && l.log.IsLevelEnabled(logrus.TraceLevel):
		sql, rows := fc()
		l.entry(ctx, sql, rows, elapsed).Trace("gorm query")
	}
}

func (l *Logger) entry(ctx context.Context, sql string, rows int64, elapsed time.Duration) *logrus.Entry {
	return l.log.WithContext(ctx).WithFields(logrus.Fields{
		"sql":     sql,
		"rows":    rows,
		"elapsed": elapsed.String(),
	})
}
