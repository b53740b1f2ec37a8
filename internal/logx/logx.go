// Package logx is the structured logging wrapper shared by every
// component of the transfer engine. It mirrors the leveled, object-tagged
// logging style of rclone's fs.Debugf/fs.Infof/fs.Logf family but is
// backed directly by logrus instead of a config-driven dispatcher, since
// this module has no global config singleton of its own.
package logx

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Level controls how verbose a Container handle's logging is. It maps
// directly onto the handle's "verbosity" field from the data model.
type Level int

const (
	// Silent emits nothing below warnings.
	Silent Level = iota
	// Normal emits warnings and notable state transitions (retries, refreshes).
	Normal
	// Verbose additionally emits per-request tracing.
	Verbose
)

// Logger is a small per-handle logging facade. A zero Logger is valid and
// logs at Silent verbosity; a nil *Logger applies no level filtering.
type Logger struct {
	level   Level
	entry   *logrus.Entry
	subject string
}

// New returns a Logger tagged with subject (typically "container/blob")
// at the given verbosity.
func New(subject string, verbosity int) *Logger {
	level := Normal
	switch {
	case verbosity <= 0:
		level = Silent
	case verbosity == 1:
		level = Normal
	default:
		level = Verbose
	}
	return &Logger{
		level:   level,
		subject: subject,
		entry:   logrus.WithField("subject", subject),
	}
}

func (l *Logger) fields() *logrus.Entry {
	if l == nil || l.entry == nil {
		return logrus.WithField("subject", "azstorage")
	}
	return l.entry
}

// Debugf logs fine-grained per-request detail, only shown at Verbose.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l != nil && l.level < Verbose {
		return
	}
	l.fields().Debugf(format, args...)
}

// Infof logs notable but expected events (retry, refresh, race recovery).
func (l *Logger) Infof(format string, args ...interface{}) {
	if l != nil && l.level < Normal {
		return
	}
	l.fields().Info(fmt.Sprintf(format, args...))
}

// Warnf logs conditions that are handled but worth surfacing.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.fields().Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a fatal-to-the-operation condition before it is returned to the caller.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.fields().Error(fmt.Sprintf(format, args...))
}

// WithField returns a derived Logger carrying an extra structured field,
// used to tag a worker's block index or byte range onto its log lines.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	base := l.fields()
	return &Logger{
		level:   l.level,
		subject: l.subject,
		entry:   base.WithField(key, value),
	}
}
