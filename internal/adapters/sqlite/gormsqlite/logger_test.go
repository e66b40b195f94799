package gormsqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLoggerTrace(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.TraceLevel)
	l := NewLogger(log, 10*time.Millisecond)
	query := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(context.Background(), time.Now(), query, gorm.ErrRecordNotFound)
	require.Empty(t, hook.AllEntries())

	l.Trace(context.Background(), time.Now(), query, errors.New("disk I/O error"))
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	require.Equal(t, "SELECT 1", hook.LastEntry().Data["sql"])

	l.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	hook.Reset()
	l.LogMode(logger.Info).Trace(context.Background(), time.Now(), query, nil)
	require.Equal(t, logrus.TraceLevel, hook.LastEntry().Level)

	hook.Reset()
	l.LogMode(logger.Silent).Trace(context.Background(), time.Now(), query, errors.New("ignored"))
	require.Empty(t, hook.AllEntries())
}
