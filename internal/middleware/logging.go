// Package middleware provides the HTTP middleware chain wrapped around
// every inbound request: request-ID assignment, structured access
// logging and response-size accounting.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/streamrelay/proxy/internal/util"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	LoggerKey    contextKey = "logger"

	HeaderRequestID = "X-Request-ID"
)

// responseWriter wraps http.ResponseWriter to capture status and size,
// and to propagate Flush so chunked streaming stays unbuffered.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// GetLogger retrieves the per-request logger attached to ctx, falling
// back to the default logger if none was attached.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// GetRequestID retrieves the request ID attached to ctx, or "" if none.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// Logging assigns a request ID (reusing an inbound X-Request-ID header
// if present), attaches a request-scoped logger to the context, and
// logs the request's start and completion with size and duration.
// Client-IP attribution trusts X-Forwarded-For/X-Real-IP only when
// trustProxyHeaders is set and RemoteAddr falls within trustedCIDRs -
// otherwise the logged remote_addr is taken from the raw connection.
func Logging(base *slog.Logger, trustProxyHeaders bool, trustedCIDRs []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = util.GenerateRequestID()
			}

			reqLogger := base.With("request_id", requestID)
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, reqLogger)

			w.Header().Set(HeaderRequestID, requestID)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			clientIP := util.GetClientIP(r, trustProxyHeaders, trustedCIDRs)
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			reqLogger.Debug("request started",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", clientIP,
				"request_bytes", requestSize,
			)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(start)
			reqLogger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", clientIP,
				"status", wrapped.status,
				"duration_ms", duration.Milliseconds(),
				"request_bytes", requestSize,
				"response_bytes", wrapped.size,
				"size_flow", fmt.Sprintf("%s -> %s", formatBytes(requestSize), formatBytes(wrapped.size)),
			)
		})
	}
}

// formatBytes renders a byte count as a short human-readable size.
func formatBytes(n int64) string {
	const unit = 1024
	const suffixes = "KMGTPE"

	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	if exp >= len(suffixes) {
		exp = len(suffixes) - 1
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), suffixes[exp])
}
