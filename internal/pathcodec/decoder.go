package pathcodec

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/streamrelay/proxy/internal/apperr"
	"github.com/streamrelay/proxy/internal/core/domain"
)

// allowedOverlayHeaders is the fixed allow-list from spec §4.F: only
// these header names are ever copied from encoded_params onto the
// outbound request. Keyed by canonical MIME header form so the lookup
// in overlayHeaders is case-insensitive regardless of how the caller
// cased the "param/k=v" key.
var allowedOverlayHeaders = map[string]bool{
	http.CanonicalHeaderKey("User-Agent"):    true,
	http.CanonicalHeaderKey("Origin"):        true,
	http.CanonicalHeaderKey("Referer"):       true,
	http.CanonicalHeaderKey("Cookie"):        true,
	http.CanonicalHeaderKey("Content-Type"):  true,
	http.CanonicalHeaderKey("Accept"):        true,
	http.CanonicalHeaderKey("x-csrf-token"):  true,
	http.CanonicalHeaderKey("Sec-Fetch-Dest"): true,
	http.CanonicalHeaderKey("Sec-Fetch-Mode"): true,
	http.CanonicalHeaderKey("Sec-Fetch-Site"): true,
	http.CanonicalHeaderKey("Authorization"): true,
	http.CanonicalHeaderKey("Range"):         true,
}

// Decoder implements ports.PathDecoder.
type Decoder struct{}

func New() *Decoder { return &Decoder{} }

// Decode parses rawPath (without leading slash) and the inbound query
// into a DecodedPath, per spec §4.F.
func (d *Decoder) Decode(rawPath string, query url.Values) (domain.DecodedPath, error) {
	segments := splitNonEmpty(rawPath)
	if len(segments) == 0 {
		return domain.DecodedPath{}, apperr.BadRequest("empty path", nil)
	}

	kind := classify(segments[0])
	if kind == domain.HandlerLiteral {
		return decodeLiteral(rawPath, query)
	}

	if len(segments) < 2 {
		return domain.DecodedPath{}, apperr.BadRequest("missing encoded data segment", nil)
	}

	decoded, err := DecodeBase64URL(segments[1])
	if err != nil {
		return domain.DecodedPath{}, err
	}

	parsed := parseEncodedData(decoded)
	remainingSegments := segments[2:]

	switch kind {
	case domain.HandlerENC, domain.HandlerENC1, domain.HandlerENC3:
		return decodeFromAdditionalSegments(kind, parsed, remainingSegments, query)
	case domain.HandlerENC2:
		return decodeENC2(parsed, remainingSegments, query)
	default:
		return domain.DecodedPath{}, apperr.BadRequest("unknown handler kind", nil)
	}
}

func classify(first string) domain.HandlerKind {
	switch first {
	case "enc":
		return domain.HandlerENC
	case "enc1":
		return domain.HandlerENC1
	case "enc2":
		return domain.HandlerENC2
	case "enc3":
		return domain.HandlerENC3
	default:
		return domain.HandlerLiteral
	}
}

func splitNonEmpty(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func decodeLiteral(rawPath string, query url.Values) (domain.DecodedPath, error) {
	target := normaliseURL(rawPath)
	target = MergeQuery(target, query.Encode())

	if err := requireHostname(target); err != nil {
		return domain.DecodedPath{}, err
	}

	return domain.DecodedPath{
		HandlerKind: domain.HandlerLiteral,
		LiteralPath: rawPath,
		TargetURL:   target,
	}, nil
}

// decodeFromAdditionalSegments handles enc/enc1/enc3: the URL comes
// from the segments after the encoded block, not from the decoded
// payload's tail.
func decodeFromAdditionalSegments(kind domain.HandlerKind, parsed parsedData, remaining []string, query url.Values) (domain.DecodedPath, error) {
	if len(remaining) == 0 {
		return domain.DecodedPath{}, apperr.BadRequest("missing target URL segments", nil)
	}

	target := AssembleURL(remaining)
	target = MergeQuery(target, query.Encode())

	if err := requireHostname(target); err != nil {
		return domain.DecodedPath{}, err
	}

	return domain.DecodedPath{
		HandlerKind:        kind,
		EncodedParams:      parsed.Params,
		AdditionalSegments: remaining,
		TargetURL:          target,
		OverlayHeaders:      overlayHeaders(parsed.Params),
	}, nil
}

// decodeENC2 handles enc2: the URL is the tail of the decoded payload
// itself; any further path segments are each a base64url-encoded
// key=value&... query fragment overlaid onto the target's query.
func decodeENC2(parsed parsedData, remaining []string, query url.Values) (domain.DecodedPath, error) {
	if len(parsed.RemainingURL) == 0 {
		return domain.DecodedPath{}, apperr.BadRequest("missing target URL in encoded data", nil)
	}

	target := AssembleURL(parsed.RemainingURL)

	for _, seg := range remaining {
		decodedFragment, err := DecodeBase64URL(seg)
		if err != nil {
			continue // per spec: "successful decodings overlay"; failures are skipped
		}
		target = MergeQuery(target, decodedFragment)
	}

	target = MergeQuery(target, query.Encode())

	if err := requireHostname(target); err != nil {
		return domain.DecodedPath{}, err
	}

	return domain.DecodedPath{
		HandlerKind:        domain.HandlerENC2,
		EncodedParams:      parsed.Params,
		AdditionalSegments: remaining,
		TargetURL:          target,
		OverlayHeaders:      overlayHeaders(parsed.Params),
	}, nil
}

func requireHostname(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return apperr.BadRequest("decoded target has no hostname", err)
	}
	return nil
}

func overlayHeaders(params map[string]string) http.Header {
	h := make(http.Header)
	for k, v := range params {
		if allowedOverlayHeaders[http.CanonicalHeaderKey(k)] {
			h.Set(k, v)
		}
	}
	return h
}
