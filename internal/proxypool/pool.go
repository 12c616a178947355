// Package proxypool holds validated upstream HTTP/SOCKS proxies,
// scores them on use, and selects one per request - component C/D from
// spec §4.C/§4.D. Selection mirrors the teacher's round-robin selector
// in shape (filter then pick), but picks uniformly at random per spec
// rather than round-robin, and owns its own success/failure bookkeeping
// instead of delegating to a stats collector.
package proxypool

import (
	"context"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/streamrelay/proxy/internal/core/domain"
	"github.com/streamrelay/proxy/internal/util"
)

const (
	retryBaseDelay   = 100 * time.Millisecond
	retryMaxDelay    = 2 * time.Second
	retryJitterRatio = 0.2
)

const demotionThreshold = 5

// builtInTestURLs is the sequence of liveness targets tried during
// validation, in addition to the configured test URL.
var builtInTestURLs = []string{
	"http://httpbin.org/ip",
	"http://www.google.com/generate_204",
	"http://www.gstatic.com/generate_204",
}

// Prober is the subset of behaviour the pool needs to check a proxy's
// liveness; satisfied by an *http.Client-backed implementation so tests
// can fake it without a network dependency.
type Prober func(ctx context.Context, proxyEndpoint, testURL string, timeout time.Duration) bool

type Pool struct {
	mu         sync.Mutex
	entries    map[string]*domain.ProxyEntry
	order      []string // insertion order, for deterministic iteration in Stats
	useProxy   bool
	testURL    string
	maxRetries int
	prober     Prober
	validator  singleflight.Group
}

// New builds an empty pool. useProxy mirrors Config.Proxy.UseProxy;
// Available() is false whenever it's false regardless of entries.
// maxRetries is Config.Proxy.MaxRetries; a probe against each test URL
// is attempted up to that many times in total, backing off exponentially between
// attempts, before the URL is considered unreachable.
func New(useProxy bool, testURL string, prober Prober, maxRetries int) *Pool {
	return &Pool{
		entries:    make(map[string]*domain.ProxyEntry),
		useProxy:   useProxy,
		testURL:    testURL,
		maxRetries: maxRetries,
		prober:     prober,
	}
}

// NormaliseEndpoint prefixes a scheme when one is absent: socks5:// for
// the well-known SOCKS ports (1080, 9050), http:// otherwise.
func NormaliseEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if strings.Contains(raw, "://") {
		return raw
	}
	if strings.HasSuffix(raw, ":1080") || strings.HasSuffix(raw, ":9050") {
		return "socks5://" + raw
	}
	return "http://" + raw
}

// Validate normalises and liveness-checks each candidate, returning the
// subset that responded successfully to any of the built-in or
// configured test URLs. Validation is sequential and deduplicated via
// singleflight so a candidate checked concurrently from two calls to
// Validate only probes once.
func (p *Pool) Validate(ctx context.Context, candidates []string, timeout time.Duration) []string {
	targets := append([]string{p.testURL}, builtInTestURLs...)

	var valid []string
	for _, raw := range candidates {
		endpoint := NormaliseEndpoint(raw)
		if endpoint == "" {
			continue
		}

		v, _, _ := p.validator.Do(endpoint, func() (any, error) {
			return p.isLive(ctx, endpoint, targets, timeout), nil
		})

		if v.(bool) {
			valid = append(valid, endpoint)
		}
	}
	return valid
}

func (p *Pool) isLive(ctx context.Context, endpoint string, targets []string, timeout time.Duration) bool {
	for _, target := range targets {
		if target == "" {
			continue
		}
		if p.probeWithRetry(ctx, endpoint, target, timeout) {
			return true
		}
	}
	return false
}

// probeWithRetry tries a single test URL up to maxRetries times in total,
// backing off exponentially between attempts so a transiently
// unreachable proxy isn't demoted by one slow network blip.
func (p *Pool) probeWithRetry(ctx context.Context, endpoint, target string, timeout time.Duration) bool {
	attempts := p.maxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if p.prober(ctx, endpoint, target, timeout) {
			return true
		}
		if attempt == attempts {
			break
		}

		delay := util.CalculateExponentialBackoff(attempt, retryBaseDelay, retryMaxDelay, retryJitterRatio)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false
		}
	}
	return false
}

// Add registers endpoint with zero stats if not already present.
func (p *Pool) Add(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[endpoint]; ok {
		return
	}
	p.entries[endpoint] = &domain.ProxyEntry{Endpoint: endpoint}
	p.order = append(p.order, endpoint)
}

// Pick chooses uniformly at random among current working entries.
func (p *Pool) Pick() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.order) == 0 {
		return "", false
	}
	idx := rand.Intn(len(p.order))
	return p.order[idx], true
}

// Succeed increments the entry's success count. No-op if unknown.
func (p *Pool) Succeed(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[endpoint]; ok {
		e.Successes++
	}
}

// Fail increments the entry's failure count, removing it once failures
// exceed the demotion threshold.
func (p *Pool) Fail(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[endpoint]
	if !ok {
		return
	}
	e.Failures++
	if e.Failures > demotionThreshold {
		delete(p.entries, endpoint)
		p.removeFromOrder(endpoint)
	}
}

func (p *Pool) removeFromOrder(endpoint string) {
	for i, e := range p.order {
		if e == endpoint {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

// Available reports whether the pool should be consulted at all.
func (p *Pool) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.useProxy && len(p.order) > 0
}

// Stats is the aggregate snapshot from spec §4.C.
type Stats struct {
	WorkingCount  int
	TotalSuccess  int
	TotalFailures int
	PerProxy      map[string]domain.ProxyEntry
}

func (p *Pool) StatsSnapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{PerProxy: make(map[string]domain.ProxyEntry, len(p.entries))}
	for _, endpoint := range p.order {
		e := p.entries[endpoint]
		s.WorkingCount++
		s.TotalSuccess += e.Successes
		s.TotalFailures += e.Failures
		s.PerProxy[endpoint] = *e
	}
	return s
}

// ParseHostPort is a small helper for logging/display: it strips the
// scheme from an endpoint so dashboards can show a shorter label.
func ParseHostPort(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
