// Package handler implements component K: the top-level HTTP handler
// that extracts the inbound request, decodes the target via 4.F,
// dispatches via 4.J, and shapes the final response per spec §4.K.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/streamrelay/proxy/internal/apperr"
	"github.com/streamrelay/proxy/internal/core/domain"
	"github.com/streamrelay/proxy/internal/core/ports"
	"github.com/streamrelay/proxy/internal/logger"
	"github.com/streamrelay/proxy/internal/middleware"
	"github.com/streamrelay/proxy/internal/util"
)

// allowedInboundHeaders is the fixed allow-list from spec §4.K - only
// these are read off the inbound request and considered for
// forwarding (subject to each handler kind's own overlay rules).
var allowedInboundHeaders = []string{
	"User-Agent", "Accept", "Content-Type", "Origin", "Referer", "Cookie", "Range", "Authorization",
}

// Handler is mounted behind middleware.RequestSizeLimiter, which
// enforces the max_request_size/413 rule from spec §4.K before any
// request reaches Decode.
type Handler struct {
	decoder    ports.PathDecoder
	dispatcher ports.Dispatcher
	log        *logger.StyledLogger
}

func New(decoder ports.PathDecoder, dispatcher ports.Dispatcher, log *logger.StyledLogger) *Handler {
	return &Handler{decoder: decoder, dispatcher: dispatcher, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(allowedInboundHeaders, ", "))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	path := util.StripRoutePrefix(r.Context(), r.URL.Path, middleware.RoutePrefixContextKey)
	rawPath := strings.TrimPrefix(path, "/")

	headers := make(http.Header)
	for _, name := range allowedInboundHeaders {
		if v := r.Header.Get(name); v != "" {
			headers.Set(name, v)
		}
	}

	decoded, err := h.decoder.Decode(rawPath, r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}

	if decoded.OverlayHeaders != nil {
		for k, v := range decoded.OverlayHeaders {
			headers[k] = v
		}
	}

	ctx := r.Context()
	resp, streamed, err := h.dispatcher.Dispatch(ctx, w, r.Method, decoded.TargetURL, headers)
	if err != nil {
		h.log.WarnContext(ctx, "dispatch failed", "target", decoded.TargetURL, "error", err)
	}
	if streamed {
		return
	}

	h.writeShaped(w, decoded.HandlerKind, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperr.StatusOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// writeShaped implements spec §4.K's response-shaping table: JSON
// upstream bodies are decoded then re-serialized; enc/enc1/enc2 return
// the parsed JSON value or raw text; enc3 relabels HTML/plain bodies
// that parse as JSON, or wraps the whole CapturedResponse as JSON when
// upstream was JSON.
func (h *Handler) writeShaped(w http.ResponseWriter, kind domain.HandlerKind, resp domain.CapturedResponse) {
	if resp.Error != "" {
		status := resp.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": resp.Error})
		return
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	bodyText := resp.Body.Text
	upstreamIsJSON := strings.Contains(resp.Headers["content-type"], "application/json")

	var parsed any
	bodyParses := false
	if upstreamIsJSON || looksLikeJSON(bodyText) {
		if err := json.Unmarshal([]byte(bodyText), &parsed); err == nil {
			bodyParses = true
		}
	}

	switch kind {
	case domain.HandlerENC3:
		if upstreamIsJSON && bodyParses {
			envelope := map[string]any{
				"url":     resp.FinalURL,
				"cookies": resp.SetCookies,
				"headers": resp.Headers,
				"status":  resp.Status,
				"body":    parsed,
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(envelope)
			return
		}
		if bodyParses {
			// HTML/plain text that happens to parse as JSON: relabel only.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			io.WriteString(w, bodyText)
			return
		}
		h.writeRaw(w, status, resp, bodyText)
	default: // literal, enc, enc1, enc2
		if bodyParses {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(parsed)
			return
		}
		h.writeRaw(w, status, resp, bodyText)
	}
}

func (h *Handler) writeRaw(w http.ResponseWriter, status int, resp domain.CapturedResponse, bodyText string) {
	if ct, ok := resp.Headers["content-type"]; ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(status)
	io.WriteString(w, bodyText)
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
