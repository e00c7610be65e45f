// Package logrus adapts a *logrus.Entry to offsync.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/offsync"
)

var _ offsync.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l with a "component" field.
func New(l *logrus.Logger, component string) Logger {
	return Logger{E: l.WithField("component", component)}
}

func (l Logger) Debug(msg string, f offsync.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f offsync.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f offsync.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f offsync.Fields) { l.with(f).Error(msg) }

// with moves an "err" field to logrus' own error key.
func (l Logger) with(f offsync.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
