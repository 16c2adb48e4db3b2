// Package logging wraps logrus behind a small interface, the way the
// reference codebase's own logging package wraps the same library: a
// handful of level methods plus With/WithFields for attaching structured
// context, instead of scattering *logrus.Entry through every package.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields is an alias for logrus.Fields so callers never need to import
// logrus directly.
type Fields = logrus.Fields

// Logger is the logging surface consumed by the engine, broadcaster and
// control surface. All of them take a Logger rather than reaching for a
// package-level global, so a test can supply a Discard logger and a node
// process can supply one carrying its run ID and node ID.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	// With returns a Logger that attaches key=value to every subsequent
	// entry, without mutating the receiver.
	With(key string, value interface{}) Logger
	// WithFields is the multi-key form of With.
	WithFields(fields Fields) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New builds a Logger writing to w at the given level. level is a logrus
// level name ("debug", "info", "warn", "error"); an unrecognized name falls
// back to "info".
func New(w io.Writer, level string) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// Default returns a Logger writing to stderr at info level, for use where
// no logger was explicitly wired (mirroring the reference's
// `if logger == nil { logger = slog.Default() }` fallback).
func Default() Logger {
	return New(os.Stderr, "info")
}

// Discard returns a Logger that drops everything, for tests that don't
// want consensus-loop chatter in their output.
func Discard() Logger {
	return New(io.Discard, "error")
}

func (l *logrusLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusLogger) With(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fields)}
}
