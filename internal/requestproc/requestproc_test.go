package requestproc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamrelay/proxy/internal/config"
	"github.com/streamrelay/proxy/internal/httpclient"
)

func newTestProcessor(maxRedirects int) *Processor {
	factory := httpclient.New(config.TimeoutConfig{Connect: time.Second, Read: time.Second, Write: time.Second, Pool: time.Second}, "test-agent")
	return New(factory, nil, maxRedirects, "test-agent", time.Second)
}

func TestDo_SimpleGET(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json, text/javascript, */*; q=0.01", r.Header.Get("Accept"))
		w.Header().Set("Set-Cookie", "a=1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	p := newTestProcessor(5)
	resp := p.Do(context.Background(), http.MethodGet, upstream.URL, http.Header{}, nil)
	require.Empty(t, resp.Error)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []string{"a=1"}, resp.SetCookies)
	assert.Equal(t, `{"ok":true}`, resp.Body.Text)
}

func TestDo_CallerHeaderOverridesDefault(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "custom/accept", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	p := newTestProcessor(5)
	headers := http.Header{"Accept": {"custom/accept"}}
	resp := p.Do(context.Background(), http.MethodGet, upstream.URL, headers, nil)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestDo_FollowsRedirectManually(t *testing.T) {
	var final *httptest.Server
	final = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("landed"))
	}))
	defer final.Close()

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer redirecting.Close()

	p := newTestProcessor(5)
	resp := p.Do(context.Background(), http.MethodGet, redirecting.URL, http.Header{}, nil)
	require.Empty(t, resp.Error)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "landed", resp.Body.Text)
	assert.Equal(t, final.URL, resp.FinalURL)
}

func TestDo_TooManyRedirectsFails(t *testing.T) {
	var loop *httptest.Server
	loop = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, loop.URL, http.StatusFound)
	}))
	defer loop.Close()

	p := newTestProcessor(2)
	resp := p.Do(context.Background(), http.MethodGet, loop.URL, http.Header{}, nil)
	assert.NotEmpty(t, resp.Error)
}
