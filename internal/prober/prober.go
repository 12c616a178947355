// Package prober implements component E: a HEAD-then-GET strategy that
// recovers a target's status, content type, length and range support
// without downloading the body, per spec §4.E.
package prober

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/streamrelay/proxy/internal/core/domain"
	"github.com/streamrelay/proxy/internal/core/ports"
	"github.com/streamrelay/proxy/internal/httpclient"
)

// Prober probes a target URL per the strict-order algorithm in spec
// §4.E: HEAD first if configured, then a sequence of ranged/plain GETs
// that each abort after reading headers.
type Prober struct {
	factory     *httpclient.Factory
	selector    ports.ProxySelector
	useHead     bool
	readTimeout time.Duration
}

func New(factory *httpclient.Factory, selector ports.ProxySelector, useHead bool, readTimeout time.Duration) *Prober {
	return &Prober{factory: factory, selector: selector, useHead: useHead, readTimeout: readTimeout}
}

// timeoutFor scales the base read timeout by 10x (no proxy) or 30x
// (through a proxy), mirroring the original proxy's content-info getter,
// which widens its budget the same way because proxied probes run
// measurably slower than direct ones.
func (p *Prober) timeoutFor(hasProxy bool) time.Duration {
	if hasProxy {
		return p.readTimeout * 30
	}
	return p.readTimeout * 10
}

func (p *Prober) Probe(ctx context.Context, targetURL string, headers http.Header) domain.ProbedContentInfo {
	if p.useHead {
		if info, ok := p.tryHead(ctx, targetURL, headers); ok {
			return info
		}
	}

	strategies := []func(context.Context, string, http.Header) (domain.ProbedContentInfo, bool){
		p.tryRangeProbe(0, 0),
		p.tryRangeProbe(0, 999),
		p.tryPlainGET,
	}

	var lastErr string
	for _, strategy := range strategies {
		info, ok := strategy(ctx, targetURL, headers)
		if ok {
			return info
		}
		if info.Error != "" {
			lastErr = info.Error
		}
	}

	return domain.ProbedContentInfo{
		Status:     0,
		MethodUsed: "GET_ALL_FAILED",
		Error:      lastErr,
	}
}

func (p *Prober) pickProxy() (string, bool) {
	if p.selector != nil && p.selector.Available() {
		return p.selector.Pick()
	}
	return "", false
}

func (p *Prober) tryHead(ctx context.Context, targetURL string, headers http.Header) (domain.ProbedContentInfo, bool) {
	proxy, hasProxy := p.pickProxy()
	client, release := p.factory.Acquire(httpclient.Options{Proxy: proxy, VerifyTLS: true, FollowRedirect: true, Read: p.timeoutFor(hasProxy)})
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, targetURL, nil)
	if err != nil {
		return domain.ProbedContentInfo{Error: err.Error()}, false
	}
	copyHeaders(req.Header, headers)

	resp, err := client.Do(req)
	if err != nil {
		if hasProxy {
			p.selector.Fail(proxy)
		}
		return domain.ProbedContentInfo{Error: err.Error()}, false
	}
	defer resp.Body.Close()
	if hasProxy {
		p.selector.Succeed(proxy)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return domain.ProbedContentInfo{}, false
	}

	length, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil || length <= 0 {
		return domain.ProbedContentInfo{}, false
	}

	return domain.ProbedContentInfo{
		Status:          resp.StatusCode,
		ContentType:     resp.Header.Get("Content-Type"),
		ContentLength:   length,
		AcceptRanges:    strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes"),
		ResponseHeaders: resp.Header,
		MethodUsed:      "HEAD",
	}, true
}

func (p *Prober) tryRangeProbe(start, end int64) func(context.Context, string, http.Header) (domain.ProbedContentInfo, bool) {
	return func(ctx context.Context, targetURL string, headers http.Header) (domain.ProbedContentInfo, bool) {
		proxy, hasProxy := p.pickProxy()
		client, release := p.factory.Acquire(httpclient.Options{Proxy: proxy, VerifyTLS: true, FollowRedirect: true, Read: p.timeoutFor(hasProxy)})
		defer release()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
		if err != nil {
			return domain.ProbedContentInfo{Error: err.Error()}, false
		}
		copyHeaders(req.Header, headers)
		req.Header.Set("Range", "bytes="+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10))

		resp, err := client.Do(req)
		if err != nil {
			if hasProxy {
				p.selector.Fail(proxy)
			}
			return domain.ProbedContentInfo{Error: err.Error()}, false
		}
		defer resp.Body.Close()
		if hasProxy {
			p.selector.Succeed(proxy)
		}

		if resp.StatusCode != http.StatusPartialContent {
			return domain.ProbedContentInfo{}, false
		}

		total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range"))
		if !ok || total <= 0 {
			return domain.ProbedContentInfo{}, false
		}

		return domain.ProbedContentInfo{
			Status:          resp.StatusCode,
			ContentType:     resp.Header.Get("Content-Type"),
			ContentLength:   total,
			AcceptRanges:    true,
			ResponseHeaders: resp.Header,
			MethodUsed:      "GET",
		}, true
	}
}

func (p *Prober) tryPlainGET(ctx context.Context, targetURL string, headers http.Header) (domain.ProbedContentInfo, bool) {
	proxy, hasProxy := p.pickProxy()
	client, release := p.factory.Acquire(httpclient.Options{Proxy: proxy, VerifyTLS: true, FollowRedirect: true, Read: p.timeoutFor(hasProxy)})
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return domain.ProbedContentInfo{Error: err.Error()}, false
	}
	copyHeaders(req.Header, headers)

	resp, err := client.Do(req)
	if err != nil {
		if hasProxy {
			p.selector.Fail(proxy)
		}
		return domain.ProbedContentInfo{Error: err.Error()}, false
	}
	defer resp.Body.Close()
	if hasProxy {
		p.selector.Succeed(proxy)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.ProbedContentInfo{}, false
	}

	length, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil || length <= 0 {
		return domain.ProbedContentInfo{}, false
	}

	return domain.ProbedContentInfo{
		Status:          resp.StatusCode,
		ContentType:     resp.Header.Get("Content-Type"),
		ContentLength:   length,
		AcceptRanges:    strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes"),
		ResponseHeaders: resp.Header,
		MethodUsed:      "GET",
	}, true
}

// parseContentRangeTotal parses "bytes start-end/total" (or "bytes
// */total"), returning total.
func parseContentRangeTotal(headerVal string) (int64, bool) {
	if headerVal == "" {
		return 0, false
	}
	idx := strings.LastIndexByte(headerVal, '/')
	if idx < 0 || idx == len(headerVal)-1 {
		return 0, false
	}
	totalPart := headerVal[idx+1:]
	if totalPart == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

func copyHeaders(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
