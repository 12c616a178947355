package logger

import (
	"context"
	"log/slog"
)

// StyledLogger wraps a *slog.Logger with convenience methods for the
// events this proxy cares about: proxy pool lifecycle, stream
// lifecycle, and per-request completion. It carries no formatting
// concerns of its own - colour and JSON-vs-text are the root logger's
// handler's job - it just standardises attribute names so every call
// site logs the same fields the same way.
type StyledLogger struct {
	*slog.Logger
}

// NewStyled wraps an existing slog.Logger.
func NewStyled(base *slog.Logger) *StyledLogger {
	return &StyledLogger{Logger: base}
}

// With returns a StyledLogger with the given attributes attached to
// every subsequent record, mirroring slog.Logger.With.
func (s *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{Logger: s.Logger.With(args...)}
}

// WithRequestID attaches a request_id attribute.
func (s *StyledLogger) WithRequestID(id string) *StyledLogger {
	return s.With("request_id", id)
}

// ProxyPicked logs a successful proxy selection for a request.
func (s *StyledLogger) ProxyPicked(ctx context.Context, endpoint string) {
	s.Logger.InfoContext(ctx, "proxy picked", "endpoint", endpoint)
}

// ProxyFailed logs a transport-level proxy failure, recorded against
// the pool's failure count for that endpoint.
func (s *StyledLogger) ProxyFailed(ctx context.Context, endpoint string, err error) {
	s.Logger.WarnContext(ctx, "proxy failed", "endpoint", endpoint, "error", err)
}

// ProxyDemoted logs a pool entry crossing the failure threshold and
// being taken out of rotation.
func (s *StyledLogger) ProxyDemoted(ctx context.Context, endpoint string, failures int) {
	s.Logger.WarnContext(ctx, "proxy demoted", "endpoint", endpoint, "failures", failures)
}

// StreamStarted logs the beginning of a range-aware byte stream.
func (s *StyledLogger) StreamStarted(ctx context.Context, target string, rangeStart, rangeEnd int64) {
	s.Logger.InfoContext(ctx, "stream started", "target", target, "range_start", rangeStart, "range_end", rangeEnd)
}

// StreamEnded logs the end of a stream, successful or not.
func (s *StyledLogger) StreamEnded(ctx context.Context, bytesSent int64, err error) {
	if err != nil {
		s.Logger.WarnContext(ctx, "stream ended", "bytes_sent", bytesSent, "error", err)
		return
	}
	s.Logger.InfoContext(ctx, "stream ended", "bytes_sent", bytesSent)
}

// RequestCompleted logs the outcome of a fully handled inbound
// request: decoded target, handler kind, and response status.
func (s *StyledLogger) RequestCompleted(ctx context.Context, kind, target string, status int) {
	s.Logger.InfoContext(ctx, "request completed", "handler_kind", kind, "target", target, "status", status)
}
