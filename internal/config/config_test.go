package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	v := New()
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "WARNING", cfg.Logging.Level)
	assert.False(t, cfg.Proxy.UseProxy)
	assert.Equal(t, int64(102400), cfg.Limits.StreamChunkSize)
	assert.Equal(t, int64(104857600), cfg.Limits.MaxRangeSize)
	assert.Equal(t, int64(10485760), cfg.Limits.MaxRequestSize)
	assert.Equal(t, 5, cfg.Limits.MaxRedirects)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Read)
	assert.NotEmpty(t, cfg.Classifier.VideoExtensions)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("USE_PROXY", "true")
	t.Setenv("PROXY_LIST", "1.2.3.4:8080, 5.6.7.8:1080 ,")
	t.Setenv("TIMEOUT_READ", "12.5")
	t.Setenv("MAX_REDIRECTS", "2")

	v := New()
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.True(t, cfg.Proxy.UseProxy)
	assert.Equal(t, []string{"1.2.3.4:8080", "5.6.7.8:1080"}, cfg.Proxy.ProxyList)
	assert.Equal(t, 12500*time.Millisecond, cfg.Timeouts.Read)
	assert.Equal(t, 2, cfg.Limits.MaxRedirects)
}

func TestLoad_TrustedProxyCIDRsAndRoutePrefix(t *testing.T) {
	t.Setenv("TRUST_PROXY_HEADERS", "true")
	t.Setenv("TRUSTED_PROXY_CIDRS", "10.0.0.0/8, 192.168.0.0/16")
	t.Setenv("ROUTE_PREFIX", "/streamrelay/")

	v := New()
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.True(t, cfg.Server.TrustProxyHeaders)
	require.Len(t, cfg.Server.TrustedProxyCIDRs, 2)
	assert.Equal(t, "/streamrelay", cfg.Server.RoutePrefix)
}

func TestLoad_RejectsInvalidTrustedCIDR(t *testing.T) {
	t.Setenv("TRUSTED_PROXY_CIDRS", "not-a-cidr")
	v := New()
	_, err := Load(v)
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveTimeouts(t *testing.T) {
	t.Setenv("TIMEOUT_CONNECT", "0")
	v := New()
	_, err := Load(v)
	require.Error(t, err)
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Nil(t, splitCSV("   "))
	assert.Equal(t, []string{"a", "b"}, splitCSV("a, b"))
}
