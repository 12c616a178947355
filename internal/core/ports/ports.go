// Package ports declares the interfaces components depend on, so that
// the dispatcher and handler can be constructed against abstractions
// rather than concrete packages - mirroring the teacher's ports/adapter
// split, scoped down to what this proxy's components actually need.
package ports

import (
	"context"
	"net/http"
	"net/url"

	"github.com/streamrelay/proxy/internal/core/domain"
)

// ProxySelector is the thin capability (component D) exposed to every
// other component that needs a proxy for an outbound call.
type ProxySelector interface {
	Pick() (string, bool)
	Succeed(endpoint string)
	Fail(endpoint string)
	Available() bool
}

// ClientFactory builds per-call HTTP clients (component B).
type ClientFactory interface {
	// Acquire returns a client configured for a single call, plus a
	// release function that must run on every exit path.
	Acquire(opts ClientOptions) (*http.Client, func())
}

// ClientOptions parameterises a single Acquire call.
type ClientOptions struct {
	Proxy          string // "" = no proxy
	VerifyTLS      bool
	FollowRedirect bool
	Timeout        struct {
		Connect, Read, Write, Pool int64 // nanoseconds; 0 = use factory default
	}
}

// ContentProber recovers status/content-type/length/range-support
// (component E).
type ContentProber interface {
	Probe(ctx context.Context, targetURL string, headers http.Header) domain.ProbedContentInfo
}

// PathDecoder parses the inbound path into a DecodedPath (component F).
type PathDecoder interface {
	Decode(rawPath string, query url.Values) (domain.DecodedPath, error)
}

// Streamer proxies a ranged GET straight to the client (component G).
type Streamer interface {
	Stream(ctx context.Context, w http.ResponseWriter, targetURL string, headers http.Header, probe domain.ProbedContentInfo) error
}

// ManifestRewriter fetches and rewrites an m3u8 playlist (component H).
type ManifestRewriter interface {
	Rewrite(ctx context.Context, targetURL string, headers http.Header) (domain.CapturedResponse, error)
}

// RequestProcessor executes a single non-streaming request (component I).
type RequestProcessor interface {
	Do(ctx context.Context, method, targetURL string, headers http.Header, body []byte) domain.CapturedResponse
}

// Dispatcher routes a decoded request to G, H or I (component J).
type Dispatcher interface {
	Dispatch(ctx context.Context, w http.ResponseWriter, method, targetURL string, headers http.Header) (domain.CapturedResponse, bool, error)
}
