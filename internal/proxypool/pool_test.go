package proxypool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysLive(ctx context.Context, endpoint, testURL string, timeout time.Duration) bool {
	return true
}

func neverLive(ctx context.Context, endpoint, testURL string, timeout time.Duration) bool {
	return false
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://1.2.3.4:8080", NormaliseEndpoint("1.2.3.4:8080"))
	assert.Equal(t, "socks5://1.2.3.4:1080", NormaliseEndpoint("1.2.3.4:1080"))
	assert.Equal(t, "socks5://1.2.3.4:9050", NormaliseEndpoint("1.2.3.4:9050"))
	assert.Equal(t, "https://already.example:443", NormaliseEndpoint("https://already.example:443"))
	assert.Equal(t, "", NormaliseEndpoint("  "))
}

func TestPool_AddPickSucceedFail(t *testing.T) {
	p := New(true, "http://test.example/ip", alwaysLive, 1)
	p.Add("http://1.2.3.4:8080")

	endpoint, ok := p.Pick()
	require.True(t, ok)
	assert.Equal(t, "http://1.2.3.4:8080", endpoint)

	p.Succeed(endpoint)
	stats := p.StatsSnapshot()
	assert.Equal(t, 1, stats.TotalSuccess)
	assert.Equal(t, 1, stats.WorkingCount)
}

func TestPool_Demotion(t *testing.T) {
	p := New(true, "http://test.example/ip", alwaysLive, 1)
	p.Add("http://1.2.3.4:8080")

	for i := 0; i < 6; i++ {
		p.Fail("http://1.2.3.4:8080")
	}

	_, ok := p.Pick()
	assert.False(t, ok)

	stats := p.StatsSnapshot()
	assert.Equal(t, 0, stats.WorkingCount)
	_, present := stats.PerProxy["http://1.2.3.4:8080"]
	assert.False(t, present)
}

func TestPool_FailBelowThresholdKeepsEntry(t *testing.T) {
	p := New(true, "http://test.example/ip", alwaysLive, 1)
	p.Add("http://1.2.3.4:8080")

	for i := 0; i < 5; i++ {
		p.Fail("http://1.2.3.4:8080")
	}

	_, ok := p.Pick()
	assert.True(t, ok)
}

func TestPool_Available(t *testing.T) {
	p := New(false, "http://test.example/ip", alwaysLive, 1)
	p.Add("http://1.2.3.4:8080")
	assert.False(t, p.Available())

	p2 := New(true, "http://test.example/ip", alwaysLive, 1)
	assert.False(t, p2.Available())
	p2.Add("http://1.2.3.4:8080")
	assert.True(t, p2.Available())
}

func TestPool_ValidateFiltersDeadProxies(t *testing.T) {
	p := New(true, "http://test.example/ip", neverLive, 1)
	valid := p.Validate(context.Background(), []string{"1.2.3.4:8080"}, time.Second)
	assert.Empty(t, valid)
}

func TestPool_ValidateAcceptsLiveProxies(t *testing.T) {
	p := New(true, "http://test.example/ip", alwaysLive, 1)
	valid := p.Validate(context.Background(), []string{"1.2.3.4:8080", "5.6.7.8:1080"}, time.Second)
	assert.ElementsMatch(t, []string{"http://1.2.3.4:8080", "socks5://5.6.7.8:1080"}, valid)
}

func TestPool_AddIsIdempotent(t *testing.T) {
	p := New(true, "http://test.example/ip", alwaysLive, 1)
	p.Add("http://1.2.3.4:8080")
	p.Add("http://1.2.3.4:8080")

	stats := p.StatsSnapshot()
	assert.Equal(t, 1, stats.WorkingCount)
}

func TestPool_ValidateRetriesBeforeGivingUp(t *testing.T) {
	var calls int
	flaky := func(ctx context.Context, endpoint, testURL string, timeout time.Duration) bool {
		calls++
		return calls >= 3
	}

	p := New(true, "http://test.example/ip", flaky, 3)
	valid := p.Validate(context.Background(), []string{"1.2.3.4:8080"}, time.Second)
	assert.Equal(t, []string{"http://1.2.3.4:8080"}, valid)
	assert.Equal(t, 3, calls)
}

func TestParseHostPort(t *testing.T) {
	assert.Equal(t, "1.2.3.4:8080", ParseHostPort("http://1.2.3.4:8080"))
	assert.Equal(t, "not-a-url", ParseHostPort("not-a-url"))
}
