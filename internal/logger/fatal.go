package logger

import (
	"log/slog"
	"os"
)

// Fatal logs msg at error level to the default slog logger and exits
// with status 1. Used only during startup, before the server has
// accepted any connections worth draining gracefully.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// FatalWithLogger is the same as Fatal but against an explicit logger,
// for use once a component-scoped logger has been constructed.
func FatalWithLogger(l *slog.Logger, msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
