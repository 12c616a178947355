// Package httpclient builds per-call HTTP clients with connect/read/
// write/pool timeout budgets, optional TLS verification skip, and
// optional HTTP or SOCKS5 proxying - component B from spec §4.B.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/streamrelay/proxy/internal/config"
)

// TransportErrorKind classifies a failed Acquire-d call for callers
// that need to distinguish timeout/connect/other, per spec §4.B.
type TransportErrorKind int

const (
	ErrOther TransportErrorKind = iota
	ErrTimeout
	ErrConnect
)

// ClassifyError inspects err and reports which of the three transport
// error kinds it represents.
func ClassifyError(err error) TransportErrorKind {
	if err == nil {
		return ErrOther
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ErrConnect
	}
	return ErrOther
}

// Options parameterises a single Acquire call. A zero Timeout field
// falls back to the factory's configured default for that budget.
type Options struct {
	Proxy          string
	VerifyTLS      bool
	FollowRedirect bool
	Connect        time.Duration
	Read           time.Duration
	Write          time.Duration
	Pool           time.Duration
}

// Factory builds *http.Client values scoped to a single call. It keeps
// no client-level cache of its own beyond the shared dial/TLS defaults:
// every Acquire builds a fresh transport, and the release func it
// returns closes that transport's idle connections.
type Factory struct {
	defaults config.TimeoutConfig
	userAgent string
}

func New(defaults config.TimeoutConfig, userAgent string) *Factory {
	return &Factory{defaults: defaults, userAgent: userAgent}
}

// Acquire returns a client configured per opts, plus a release func
// that must be called on every exit path (including panics, via
// defer). release calls CloseIdleConnections on the per-call transport
// so its pooled connections are not left open after the call.
func (f *Factory) Acquire(opts Options) (*http.Client, func()) {
	connect := orDefault(opts.Connect, f.defaults.Connect)
	read := orDefault(opts.Read, f.defaults.Read)
	write := orDefault(opts.Write, f.defaults.Write)
	pool := orDefault(opts.Pool, f.defaults.Pool)

	dialer := &net.Dialer{Timeout: connect}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: read,
		IdleConnTimeout:       pool,
		ExpectContinueTimeout: write,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: !opts.VerifyTLS}, //nolint:gosec // opt-in per call
	}

	if opts.Proxy != "" {
		applyProxy(transport, dialer, opts.Proxy)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   read + connect,
	}

	if !opts.FollowRedirect {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, func() { transport.CloseIdleConnections() }
}

func orDefault(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

// applyProxy wires transport for an http(s):// or socks5:// proxy
// endpoint. SOCKS5 goes through golang.org/x/net/proxy since the
// standard library's http.Transport.Proxy hook only understands
// http/https/socks5 schemes as of Go's net/http support matrix, and we
// want an explicit, testable dialer rather than relying on env-derived
// proxy resolution.
func applyProxy(transport *http.Transport, dialer *net.Dialer, proxyURL string) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return
	}

	if u.Scheme == "socks5" {
		socksDialer, err := proxy.FromURL(u, dialer)
		if err == nil {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return socksDialer.Dial(network, addr)
			}
		}
		return
	}

	transport.Proxy = http.ProxyURL(u)
}

// NewRequest builds a request carrying the factory's user agent, for
// callers that don't already set one.
func (f *Factory) NewRequest(ctx context.Context, method, targetURL string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, targetURL, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	return req, nil
}
