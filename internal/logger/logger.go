// Package logger builds the slog.Logger every component is constructed
// with. Output is JSON on non-TTY stdout (or when Pretty is false), a
// plain (uncoloured) slog text handler on a TTY, and optionally mirrored to a
// size-rotated file via lumberjack.
package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls how New builds the root logger.
type Config struct {
	Level      string
	LogDir     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	FileOutput bool
	Pretty     bool
}

const defaultLogFileName = "streamrelay.log"

// New constructs the root slog.Logger plus a cleanup func that must run
// on shutdown to flush and close the rotating file sink, if any.
func New(cfg Config) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.Level)

	var handlers []slog.Handler
	var cleanups []func()

	handlers = append(handlers, terminalHandler(level, cfg.Pretty))

	if cfg.FileOutput {
		fileHandler, cleanup, err := fileHandler(cfg, level)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, fileHandler)
		cleanups = append(cleanups, cleanup)
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = &fanoutHandler{handlers: handlers}
	}

	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	return slog.New(h), cleanup, nil
}

func terminalHandler(level slog.Level, pretty bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: normaliseTimestamp}

	if pretty && term.IsTerminal(int(os.Stdout.Fd())) {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func fileHandler(cfg Config, level slog.Level) (slog.Handler, func(), error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, defaultLogFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: normaliseTimestamp,
	})

	return handler, func() { _ = rotator.Close() }, nil
}

func normaliseTimestamp(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		a.Key = "timestamp"
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05.000Z07:00"))
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch level {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "INFO", "info":
		return slog.LevelInfo
	case "WARNING", "WARN", "warn", "warning":
		return slog.LevelWarn
	case "ERROR", "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// fanoutHandler writes every record to all of its inner handlers.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
