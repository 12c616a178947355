// Package manifest implements component H: detection and rewriting of
// HLS (m3u8) playlists so every segment/variant URL routes back through
// this proxy's enc2 handler.
package manifest

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/streamrelay/proxy/internal/config"
	"github.com/streamrelay/proxy/internal/core/domain"
	"github.com/streamrelay/proxy/internal/core/ports"
	"github.com/streamrelay/proxy/internal/pathcodec"
	"github.com/streamrelay/proxy/internal/util"
)

var mimeIndicators = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"audio/mpegurl",
	"audio/x-mpegurl",
}

var tagIndicators = []string{
	"#EXT-X-VERSION:",
	"#EXTINF:",
	"#EXT-X-TARGETDURATION:",
}

// urlTokenRe matches absolute http(s) URLs or absolute-path tokens
// ("/foo/bar.ts") anywhere in the playlist body, not just on their own
// line - the original proxy's equivalent regex
// (src/services/processors/m3u8_processor.py's URL_PATTERN) is applied
// unanchored too, so it also catches URIs embedded in directives like
// #EXT-X-KEY or #EXT-X-MAP (e.g. URI="https://cdn/key.bin"). Excluding
// quotes and commas from the token charset keeps the match from
// swallowing the rest of a quoted attribute or a comma-separated tag.
var urlTokenRe = regexp.MustCompile(`(?i)https?://[^\s"',]+|/[^\s"',]*`)

// IsManifest reports whether contentType/body indicate an HLS playlist,
// per spec §4.H's detection rule.
func IsManifest(contentType string, body []byte) bool {
	lowerCT := strings.ToLower(contentType)
	for _, m := range mimeIndicators {
		if strings.Contains(lowerCT, m) {
			return true
		}
	}
	if strings.HasPrefix(string(body), "#EXTM3U") {
		return true
	}
	for _, tag := range tagIndicators {
		if strings.Contains(string(body), tag) {
			return true
		}
	}
	return false
}

type Rewriter struct {
	processor ports.RequestProcessor
	self      config.SelfConfig
}

func New(processor ports.RequestProcessor, self config.SelfConfig) *Rewriter {
	return &Rewriter{processor: processor, self: self}
}

// Rewrite fetches targetURL (no Range) via the generic request
// processor and replaces every URL-shaped token with an enc2-wrapped
// self URL, resolving relative tokens against targetURL first.
func (r *Rewriter) Rewrite(ctx context.Context, targetURL string, headers http.Header) (domain.CapturedResponse, error) {
	captured := r.processor.Do(ctx, http.MethodGet, targetURL, headers, nil)
	if captured.Error != "" {
		return captured, nil
	}

	body := captured.Body.Text
	locs := urlTokenRe.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		captured.Headers["content-type"] = "application/vnd.apple.mpegurl"
		return captured, nil
	}

	replacements := make([]string, len(locs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, loc := range locs {
		i, tok := i, body[loc[0]:loc[1]]
		eg.Go(func() error {
			select {
			case <-egCtx.Done():
				return egCtx.Err()
			default:
			}
			replacements[i] = r.wrapToken(tok, targetURL)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return domain.CapturedResponse{}, err
	}

	var rewritten strings.Builder
	last := 0
	for i, loc := range locs {
		rewritten.WriteString(body[last:loc[0]])
		rewritten.WriteString(replacements[i])
		last = loc[1]
	}
	rewritten.WriteString(body[last:])
	body = rewritten.String()

	if captured.Headers == nil {
		captured.Headers = map[string]string{}
	}
	captured.Headers["content-type"] = "application/vnd.apple.mpegurl"
	captured.Headers["cache-control"] = "no-cache"
	captured.Body = domain.TextBody(body)
	return captured, nil
}

func (r *Rewriter) wrapToken(token, playlistURL string) string {
	resolved := resolveAgainst(playlistURL, token)
	if u, err := url.Parse(resolved); err != nil || !u.IsAbs() || u.Host == "" {
		return token
	}
	encoded := pathcodec.EncodeBase64URL(resolved)
	base := util.NormaliseBaseURL(r.self.Scheme + "://" + r.self.Domain)
	return util.JoinURLPath(base, "/enc2/"+encoded)
}

func resolveAgainst(baseURL, token string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return token
	}
	ref, err := url.Parse(token)
	if err != nil {
		return token
	}
	return base.ResolveReference(ref).String()
}
