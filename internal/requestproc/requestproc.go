// Package requestproc implements component I: a single-attempt,
// manual-redirect request executor used both directly (generic
// fallthrough) and by the manifest rewriter (no Range).
package requestproc

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/streamrelay/proxy/internal/core/domain"
	"github.com/streamrelay/proxy/internal/core/ports"
	"github.com/streamrelay/proxy/internal/httpclient"
)

var defaultHeaders = map[string]string{
	"Accept":          "application/json, text/javascript, */*; q=0.01",
	"Accept-Language": "en-GB,en-US;q=0.9,en;q=0.8,ru;q=0.7",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
}

var redirectStatuses = map[int]bool{
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusSeeOther:          true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

type Processor struct {
	factory      *httpclient.Factory
	selector     ports.ProxySelector
	maxRedirects int
	userAgent    string
	readTimeout  time.Duration
}

func New(factory *httpclient.Factory, selector ports.ProxySelector, maxRedirects int, userAgent string, readTimeout time.Duration) *Processor {
	return &Processor{factory: factory, selector: selector, maxRedirects: maxRedirects, userAgent: userAgent, readTimeout: readTimeout}
}

// timeoutFor scales the base read timeout by 1x (no proxy) or 10x
// (through a proxy), mirroring the original proxy's request and m3u8
// processors - both widen the same way when routed through a proxy,
// and by a smaller factor than probing/streaming since these requests
// return a single body rather than a long-lived stream.
func (p *Processor) timeoutFor(hasProxy bool) time.Duration {
	if hasProxy {
		return p.readTimeout * 10
	}
	return p.readTimeout
}

// Do executes method against targetURL once, following redirects
// manually up to maxRedirects, per spec §4.I.
func (p *Processor) Do(ctx context.Context, method, targetURL string, headers http.Header, body []byte) domain.CapturedResponse {
	return p.attempt(ctx, method, targetURL, headers, body, 0)
}

func (p *Processor) attempt(ctx context.Context, method, targetURL string, headers http.Header, body []byte, redirectCount int) domain.CapturedResponse {
	if redirectCount >= p.maxRedirects {
		return domain.CapturedResponse{Status: http.StatusLoopDetected, Error: "too many redirects"}
	}

	proxy, hasProxy := "", false
	if p.selector != nil && p.selector.Available() {
		proxy, hasProxy = p.selector.Pick()
	}

	client, release := p.factory.Acquire(httpclient.Options{Proxy: proxy, VerifyTLS: true, FollowRedirect: false, Read: p.timeoutFor(hasProxy)})
	defer release()

	var reqBody []byte
	if method != http.MethodGet && method != http.MethodHead {
		reqBody = body
	}

	req, err := p.factory.NewRequest(ctx, method, targetURL, reqBody)
	if err != nil {
		return domain.CapturedResponse{Status: http.StatusInternalServerError, Error: "Unexpected error: " + err.Error()}
	}

	for k, v := range defaultHeaders {
		if headers.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	for k, values := range headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if hasProxy {
			p.selector.Fail(proxy)
		}
		return mapError(err)
	}
	defer resp.Body.Close()
	if hasProxy {
		p.selector.Succeed(proxy)
	}

	if redirectStatuses[resp.StatusCode] {
		location := resp.Header.Get("Location")
		if location == "" {
			return p.capture(resp, targetURL)
		}
		next := resolveRedirect(targetURL, location)
		return p.attempt(ctx, method, next, headers, body, redirectCount+1)
	}

	return p.capture(resp, targetURL)
}

func (p *Processor) capture(resp *http.Response, requestURL string) domain.CapturedResponse {
	data, _ := io.ReadAll(resp.Body)

	finalURL := requestURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	lowered := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			lowered[strings.ToLower(k)] = v[0]
		}
	}

	return domain.CapturedResponse{
		FinalURL:   finalURL,
		SetCookies: resp.Header.Values("Set-Cookie"),
		Headers:    lowered,
		Status:     resp.StatusCode,
		Body:       domain.TextBody(string(data)),
	}
}

func resolveRedirect(baseURL, location string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return location
	}
	ref, err := url.Parse(location)
	if err != nil {
		return location
	}
	return base.ResolveReference(ref).String()
}

func mapError(err error) domain.CapturedResponse {
	switch httpclient.ClassifyError(err) {
	case httpclient.ErrTimeout:
		return domain.CapturedResponse{Status: http.StatusRequestTimeout, Error: "Request timeout"}
	default:
		return domain.CapturedResponse{Status: http.StatusInternalServerError, Error: "Request failed: " + err.Error()}
	}
}
