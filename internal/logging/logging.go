// Package logging wraps logrus the way the teacher wraps its own
// diagnostics: a single package-level entry point configured once at
// startup by cmd/kcpgated, with per-component fields attached via With
// rather than ad-hoc fmt.Sprintf prefixes. Unlike the teacher's bare
// log.Printf calls (server/main.go uses the stdlib "log" package directly),
// the dispatcher's hot path needs level checks that don't pay for field
// formatting when the level is disabled, so callers on that path should
// guard with IsDebugEnabled before building a field set.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger instance. Configure mutates it in place so
// packages that captured a *logrus.Entry before Configure ran still pick up
// the new level and formatter.
var Log = logrus.New()

// Entry is the scoped-logger type Component returns, aliased here so
// callers don't need their own logrus import just to name the type.
type Entry = logrus.Entry

// Configure sets the output level and formatter. level is parsed with
// logrus.ParseLevel; an invalid value falls back to InfoLevel.
func Configure(level string, quiet bool) {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	if quiet {
		lv = logrus.ErrorLevel
	}
	Log.SetLevel(lv)
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	Log.SetOutput(os.Stderr)
}

// Component returns a logger scoped to a named subsystem, e.g.
// Component("dispatch") attaches {"component": "dispatch"} to every entry.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}

// IsDebugEnabled lets a hot-path caller skip building a field set entirely
// when debug logging is off.
func IsDebugEnabled() bool {
	return Log.IsLevelEnabled(logrus.DebugLevel)
}
