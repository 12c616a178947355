package manifest

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamrelay/proxy/internal/config"
	"github.com/streamrelay/proxy/internal/core/domain"
)

type fakeProcessor struct {
	resp domain.CapturedResponse
}

func (f *fakeProcessor) Do(ctx context.Context, method, targetURL string, headers http.Header, body []byte) domain.CapturedResponse {
	return f.resp
}

func TestIsManifest_ByContentType(t *testing.T) {
	assert.True(t, IsManifest("application/vnd.apple.mpegurl", nil))
	assert.False(t, IsManifest("video/mp4", nil))
}

func TestIsManifest_ByLeadingTag(t *testing.T) {
	assert.True(t, IsManifest("application/octet-stream", []byte("#EXTM3U\n#EXT-X-VERSION:3\n")))
}

func TestIsManifest_ByEmbeddedTag(t *testing.T) {
	assert.True(t, IsManifest("text/plain", []byte("garbage\n#EXTINF:10,\nsegment0.ts\n")))
}

func TestRewrite_ReplacesAbsoluteAndRelativeTokens(t *testing.T) {
	playlist := "#EXTM3U\n#EXT-X-VERSION:3\nhttps://cdn.example/seg0.ts\n/seg1.ts\n"
	proc := &fakeProcessor{resp: domain.CapturedResponse{
		Status: 200,
		Headers: map[string]string{"content-type": "application/vnd.apple.mpegurl"},
		Body:    domain.TextBody(playlist),
	}}

	r := New(proc, config.SelfConfig{Scheme: "https", Domain: "relay.example"})
	out, err := r.Rewrite(context.Background(), "https://cdn.example/playlist.m3u8", http.Header{})
	require.NoError(t, err)

	assert.Contains(t, out.Body.Text, "https://relay.example/enc2/")
	assert.NotContains(t, out.Body.Text, "https://cdn.example/seg0.ts")
	assert.NotContains(t, out.Body.Text, "/seg1.ts\n")
	assert.Equal(t, "application/vnd.apple.mpegurl", out.Headers["content-type"])
}

func TestRewrite_ReplacesURIEmbeddedInDirective(t *testing.T) {
	playlist := "#EXTM3U\n" +
		"#EXT-X-KEY:METHOD=AES-128,URI=\"https://cdn.example/key.bin\",IV=0x1\n" +
		"#EXT-X-MAP:URI=\"init.mp4\"\n" +
		"#EXTINF:10,\n" +
		"https://cdn.example/seg0.ts\n"
	proc := &fakeProcessor{resp: domain.CapturedResponse{
		Status:  200,
		Headers: map[string]string{"content-type": "application/vnd.apple.mpegurl"},
		Body:    domain.TextBody(playlist),
	}}

	r := New(proc, config.SelfConfig{Scheme: "https", Domain: "relay.example"})
	out, err := r.Rewrite(context.Background(), "https://cdn.example/playlist.m3u8", http.Header{})
	require.NoError(t, err)

	assert.NotContains(t, out.Body.Text, "https://cdn.example/key.bin")
	assert.Contains(t, out.Body.Text, `URI="https://relay.example/enc2/`)
	assert.Contains(t, out.Body.Text, "METHOD=AES-128")
	assert.Contains(t, out.Body.Text, "IV=0x1")
	// a bare relative filename with no leading "/" isn't URL-shaped per
	// urlTokenRe (matching the original proxy's own regex), so it's left
	// untouched rather than rewritten.
	assert.Contains(t, out.Body.Text, `URI="init.mp4"`)
}

func TestRewrite_PropagatesUpstreamError(t *testing.T) {
	proc := &fakeProcessor{resp: domain.CapturedResponse{Error: "Request timeout"}}
	r := New(proc, config.SelfConfig{Scheme: "https", Domain: "relay.example"})
	out, err := r.Rewrite(context.Background(), "https://cdn.example/playlist.m3u8", http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "Request timeout", out.Error)
}
