package kvstore

import (
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/branchwise/branchwise/pkg/logging"
)

// badgerLogger adapts zap to badger.Logger. Badger's info chatter is demoted
// to debug.
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func newBadgerLogger() *badgerLogger {
	return &badgerLogger{
		sugar: logging.WithComponent("badger").WithOptions(zap.AddCallerSkip(1)).Sugar(),
	}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}
