package config

import (
	"net"
	"time"
)

// Config is the immutable configuration bundle every component is
// constructed with. Once Load returns, nothing mutates a Config value
// in place - a reload builds a new one and callers swap a pointer.
type Config struct {
	Server     ServerConfig
	Self       SelfConfig
	Timeouts   TimeoutConfig
	Limits     LimitsConfig
	Proxy      ProxyPoolConfig
	Classifier ClassifierConfig
	Logging    LoggingConfig
	Prober     ProberConfig
	UserAgent  string
}

// ProberConfig configures the content prober (component E).
type ProberConfig struct {
	UseHead bool
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// TrustProxyHeaders gates whether X-Forwarded-For/X-Real-IP are
	// trusted for access-log client-IP attribution; only honoured when
	// the request's RemoteAddr falls within TrustedProxyCIDRs.
	TrustProxyHeaders bool
	TrustedProxyCIDRs []*net.IPNet
	// RoutePrefix strips a path prefix (e.g. "/streamrelay") this proxy
	// is mounted under behind an upstream reverse proxy. Blank disables
	// stripping.
	RoutePrefix string
}

// SelfConfig is the externally-visible base URL this proxy is reachable
// at, used by the manifest rewriter to build enc2-wrapped segment URLs.
type SelfConfig struct {
	Scheme string
	Domain string
}

// TimeoutConfig carries the four upstream call budgets from spec §4.B.
type TimeoutConfig struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
	Pool    time.Duration
}

// LimitsConfig carries the size and count caps from spec §3.
type LimitsConfig struct {
	MaxRedirects    int
	StreamChunkSize int64
	StreamTimeout   time.Duration
	MaxRangeSize    int64
	MaxRequestSize  int64
}

// ProxyPoolConfig configures the upstream proxy pool (component C).
type ProxyPoolConfig struct {
	UseProxy    bool
	ProxyList   []string
	TestURL     string
	TestTimeout time.Duration
	MaxRetries  int
}

// ClassifierConfig carries the vocabularies used by the content
// dispatcher (component J) to decide video vs generic content.
type ClassifierConfig struct {
	VideoExtensions []string
	VideoPatterns   []string
	VideoIndicators []string
	// VideoGlobs holds wildcard patterns (e.g. "*/hls/*") for URL
	// shapes the plain substring checks above don't capture - matched
	// with pattern.MatchesGlob.
	VideoGlobs []string
}

// LoggingConfig configures the slog-based logger.
type LoggingConfig struct {
	Level      string
	FileOutput bool
	LogDir     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Pretty     bool
}
