package middleware

import (
	"context"
	"net/http"
)

// RoutePrefixContextKey is the context key the configured route prefix
// is attached under. It's passed straight through to
// util.StripRoutePrefix by callers that need to strip it back off an
// inbound path, so the prefix only has to be threaded through the
// middleware chain once.
const RoutePrefixContextKey = "route_prefix"

// RoutePrefix attaches prefix to every request's context when this
// proxy is mounted under a path prefix behind an upstream reverse
// proxy (e.g. "/streamrelay"). A blank prefix is a no-op.
func RoutePrefix(prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if prefix == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), RoutePrefixContextKey, prefix)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
