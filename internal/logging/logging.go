// Package logging centralizes the logrus setup every other package's
// package-level `log = logrus.WithField("component", ...)` logger draws
// its configuration from, trimmed to what a library (rather than a
// multi-sink server) needs: one configured logrus.Logger, one level
// parse, one place callers derive component loggers from.
package logging

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger's level and formatter. Call
// once at process startup, before any component logger logs; components
// that logged earlier just get whatever the logrus default was.
func Init(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(parseLevel(level))
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// Component returns the logger every package in this module uses for its
// own package-level `log` variable, tagged with name.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
