// Package streamer implements component G: range-aware byte streaming
// from an upstream target straight through to the client, framing the
// response per spec §4.G's status/header table.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/streamrelay/proxy/internal/config"
	"github.com/streamrelay/proxy/internal/core/domain"
	"github.com/streamrelay/proxy/internal/core/ports"
	"github.com/streamrelay/proxy/internal/httpclient"
	"github.com/streamrelay/proxy/internal/logger"
)

// droppedInboundHeaders are never forwarded upstream as-is: Host and
// Content-Length describe the inbound connection, Range and
// Accept-Encoding are recomputed below.
var droppedInboundHeaders = []string{"Host", "Content-Length", "Range", "Accept-Encoding"}

type Streamer struct {
	factory      *httpclient.Factory
	selector     ports.ProxySelector
	limits       config.LimitsConfig
	readTimeout  time.Duration
	log          *logger.StyledLogger
	chunkPoolNew func(size int64) *chunk
}

func New(factory *httpclient.Factory, selector ports.ProxySelector, limits config.LimitsConfig, readTimeout time.Duration, log *logger.StyledLogger) *Streamer {
	return &Streamer{factory: factory, selector: selector, limits: limits, readTimeout: readTimeout, log: log}
}

// Stream proxies targetURL straight to w, applying the client's Range
// header (if any) after clamping to MaxRangeSize, and mirrors probe's
// known content type/length into the response headers.
func (s *Streamer) Stream(ctx context.Context, w http.ResponseWriter, targetURL string, headers http.Header, probe domain.ProbedContentInfo) error {
	rng, hasRange := ParseRange(headers.Get("Range"), probe.ContentLength, s.limits.MaxRangeSize)

	outbound := make(http.Header)
	for k, v := range headers {
		dropped := false
		for _, d := range droppedInboundHeaders {
			if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(d) {
				dropped = true
				break
			}
		}
		if dropped {
			continue
		}
		outbound[k] = v
	}
	outbound.Set("Accept", "*/*")
	outbound.Set("Accept-Encoding", "identity")
	if hasRange {
		outbound.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End))
	}

	proxy, hasProxy := "", false
	if s.selector != nil && s.selector.Available() {
		proxy, hasProxy = s.selector.Pick()
	}

	readTimeout := s.readTimeout * 10
	if hasProxy {
		readTimeout = s.readTimeout * 30
	}

	client, release := s.factory.Acquire(httpclient.Options{
		Proxy:          proxy,
		VerifyTLS:      true,
		FollowRedirect: true,
		Read:           readTimeout,
	})
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return err
	}
	req.Header = outbound

	resp, err := client.Do(req)
	if err != nil {
		if hasProxy {
			s.selector.Fail(proxy)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		if hasProxy {
			s.selector.Fail(proxy)
		}
		w.WriteHeader(resp.StatusCode)
		return nil
	}
	if hasProxy {
		s.selector.Succeed(proxy)
	}

	s.writeResponseHeaders(w, probe, rng, hasRange)

	status := http.StatusOK
	if hasRange {
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)

	expected := expectedBytes(resp.Header, rng, hasRange)

	s.log.StreamStarted(ctx, targetURL, rng.Start, rng.End)
	sent := s.copyBody(ctx, w, resp.Body, expected)
	s.log.StreamEnded(ctx, sent, nil)
	return nil
}

// contentRangeRe matches a response Content-Range header of the form
// "bytes start-end/total", mirroring the original proxy's
// _get_expected_bytes regex.
var contentRangeRe = regexp.MustCompile(`bytes\s+(\d+)-(\d+)/(\d+)`)

// expectedBytes derives the number of body bytes copyBody must stop
// at. When we asked for a range, rng.End-rng.Start+1 is exactly what
// writeResponseHeaders already promised the client via Content-Length
// (or Content-Range) - that promise wins even if the upstream ignores
// our Range header and answers 200 with its full body, whose own
// Content-Length would otherwise describe the *entire* resource rather
// than the span we told the client to expect. Only when we didn't
// request a range is there no such promise to protect, so the upstream
// response's own Content-Range/Content-Length is used instead,
// mirroring the original proxy's _get_expected_bytes; 0 means unknown
// (stream until EOF/error).
func expectedBytes(h http.Header, rng domain.ParsedRange, hasRange bool) int64 {
	if hasRange {
		return rng.End - rng.Start + 1
	}

	if cr := h.Get("Content-Range"); cr != "" {
		if m := contentRangeRe.FindStringSubmatch(cr); m != nil {
			start, errStart := strconv.ParseInt(m[1], 10, 64)
			end, errEnd := strconv.ParseInt(m[2], 10, 64)
			if errStart == nil && errEnd == nil && end >= start {
				return end - start + 1
			}
		}
	}

	if cl := h.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > 0 {
			return n
		}
	}

	return 0
}

// writeResponseHeaders frames the response per spec §4.G's table: 206
// with Content-Range/Content-Length when range-mode and size is known,
// 206 without those headers when range-mode and size is unknown, 200
// with Content-Length when not range-mode and size is known, otherwise
// plain 200. Accept-Ranges, Cache-Control, Content-Type,
// X-Content-Type-Options and CORS are always present.
func (s *Streamer) writeResponseHeaders(w http.ResponseWriter, probe domain.ProbedContentInfo, rng domain.ParsedRange, hasRange bool) {
	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Access-Control-Allow-Origin", "*")
	if probe.ContentType != "" {
		h.Set("Content-Type", probe.ContentType)
	}

	known := probe.ContentLength > 0

	switch {
	case hasRange && known:
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, probe.ContentLength))
		h.Set("Content-Length", strconv.FormatInt(rng.End-rng.Start+1, 10))
	case hasRange && !known:
		// no Content-Range / Content-Length: size unknown
	case !hasRange && known:
		h.Set("Content-Length", strconv.FormatInt(probe.ContentLength, 10))
	default:
		// neither header: streamed with unknown total length
	}
}

// copyBody forwards body to w in StreamChunkSize chunks (64 KiB when
// unset), reading into a buffer from a pool built for this call, stopping silently on read error or
// context cancellation - by this point headers are already sent, so
// spec §7 documents that upstream failures mid-body simply truncate
// the connection rather than surfacing an error page. When expected > 0
// the reader is capped there first, so an upstream that ignores our
// Range header and answers with its full, unranged body can never
// write more than the Content-Length already promised to the client.
func (s *Streamer) copyBody(ctx context.Context, w http.ResponseWriter, body io.Reader, expected int64) int64 {
	if expected > 0 {
		body = io.LimitReader(body, expected)
	}

	chunkSize := s.limits.StreamChunkSize
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	pool := newChunkPool(chunkSize)
	c := pool.Get()
	defer pool.Put(c)

	flusher, _ := w.(http.Flusher)

	var total int64
	for {
		select {
		case <-ctx.Done():
			return total
		default:
		}

		n, err := body.Read(c.buf)
		if n > 0 {
			if _, werr := w.Write(c.buf[:n]); werr != nil {
				return total
			}
			total += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("stream body read ended", "error", err)
			}
			return total
		}
	}
}
