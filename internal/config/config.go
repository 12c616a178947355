// Package config loads the proxy's immutable Config from the
// environment, following the table in spec §6. A YAML file can layer
// on top for local development; the same viper instance watches it and
// reports each change through Watch.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/streamrelay/proxy/internal/util"
)

const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8080

	fileWriteSettleDelay = 150 * time.Millisecond
	reloadDebounce       = 500 * time.Millisecond
)

var keys = []string{
	"LOG_LEVEL",
	"PORT",
	"USE_PROXY",
	"PROXY_LIST",
	"PROXY_TEST_URL",
	"PROXY_TEST_TIMEOUT",
	"MAX_PROXY_RETRIES",
	"TIMEOUT_CONNECT",
	"TIMEOUT_READ",
	"TIMEOUT_WRITE",
	"TIMEOUT_POOL",
	"STREAM_CHUNK_SIZE",
	"STREAM_TIMEOUT",
	"MAX_RANGE_SIZE",
	"MAX_REQUEST_SIZE",
	"MAX_REDIRECTS",
	"SELF_SCHEME",
	"SELF_DOMAIN",
	"USER_AGENT",
	"USE_HEAD",
	"TRUST_PROXY_HEADERS",
	"TRUSTED_PROXY_CIDRS",
	"ROUTE_PREFIX",
}

func defaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "WARNING")
	v.SetDefault("PORT", DefaultPort)
	v.SetDefault("USE_PROXY", false)
	v.SetDefault("PROXY_LIST", "")
	v.SetDefault("PROXY_TEST_URL", "http://httpbin.org/ip")
	v.SetDefault("PROXY_TEST_TIMEOUT", 10)
	v.SetDefault("MAX_PROXY_RETRIES", 3)
	v.SetDefault("TIMEOUT_CONNECT", 10.0)
	v.SetDefault("TIMEOUT_READ", 60.0)
	v.SetDefault("TIMEOUT_WRITE", 10.0)
	v.SetDefault("TIMEOUT_POOL", 10.0)
	v.SetDefault("STREAM_CHUNK_SIZE", 102400)
	v.SetDefault("STREAM_TIMEOUT", 60.0)
	v.SetDefault("MAX_RANGE_SIZE", 104857600)
	v.SetDefault("MAX_REQUEST_SIZE", 10485760)
	v.SetDefault("MAX_REDIRECTS", 5)
	v.SetDefault("SELF_SCHEME", "https")
	v.SetDefault("SELF_DOMAIN", "localhost:8080")
	v.SetDefault("USER_AGENT", "Mozilla/5.0 (compatible; streamrelay/1.0)")
	v.SetDefault("USE_HEAD", true)
	v.SetDefault("TRUST_PROXY_HEADERS", false)
	v.SetDefault("TRUSTED_PROXY_CIDRS", "")
	v.SetDefault("ROUTE_PREFIX", "")
}

// New builds a viper instance bound to the environment variables this
// proxy recognises, plus an optional config file for local overrides.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if cfgFile := os.Getenv("PROXY_CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	return v
}

// Load reads a Config from v. Call New() to obtain a correctly
// initialised viper instance first.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	trustedCIDRs, err := util.ParseTrustedCIDRs(splitCSV(v.GetString("TRUSTED_PROXY_CIDRS")))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:              DefaultHost,
			Port:              v.GetInt("PORT"),
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			TrustProxyHeaders: v.GetBool("TRUST_PROXY_HEADERS"),
			TrustedProxyCIDRs: trustedCIDRs,
			RoutePrefix:       strings.TrimSuffix(v.GetString("ROUTE_PREFIX"), "/"),
		},
		Self: SelfConfig{
			Scheme: v.GetString("SELF_SCHEME"),
			Domain: v.GetString("SELF_DOMAIN"),
		},
		Timeouts: TimeoutConfig{
			Connect: durationFromSeconds(v.GetFloat64("TIMEOUT_CONNECT")),
			Read:    durationFromSeconds(v.GetFloat64("TIMEOUT_READ")),
			Write:   durationFromSeconds(v.GetFloat64("TIMEOUT_WRITE")),
			Pool:    durationFromSeconds(v.GetFloat64("TIMEOUT_POOL")),
		},
		Limits: LimitsConfig{
			MaxRedirects:    v.GetInt("MAX_REDIRECTS"),
			StreamChunkSize: v.GetInt64("STREAM_CHUNK_SIZE"),
			StreamTimeout:   durationFromSeconds(v.GetFloat64("STREAM_TIMEOUT")),
			MaxRangeSize:    v.GetInt64("MAX_RANGE_SIZE"),
			MaxRequestSize:  v.GetInt64("MAX_REQUEST_SIZE"),
		},
		Proxy: ProxyPoolConfig{
			UseProxy:    v.GetBool("USE_PROXY"),
			ProxyList:   splitCSV(v.GetString("PROXY_LIST")),
			TestURL:     v.GetString("PROXY_TEST_URL"),
			TestTimeout: time.Duration(v.GetInt("PROXY_TEST_TIMEOUT")) * time.Second,
			MaxRetries:  v.GetInt("MAX_PROXY_RETRIES"),
		},
		Classifier: DefaultClassifier(),
		Logging: LoggingConfig{
			Level:      v.GetString("LOG_LEVEL"),
			FileOutput: false,
			LogDir:     "./logs",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Pretty:     false,
		},
		Prober: ProberConfig{
			UseHead: v.GetBool("USE_HEAD"),
		},
		UserAgent: v.GetString("USER_AGENT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultClassifier returns the built-in video/m3u8 classification
// vocabularies. Spec §6 doesn't expose these as environment variables,
// so they're compiled in rather than sourced from viper.
func DefaultClassifier() ClassifierConfig {
	return ClassifierConfig{
		VideoExtensions: []string{
			".mp4", ".mkv", ".avi", ".mov", ".webm", ".flv", ".wmv",
			".m4v", ".ts", ".m3u8", ".mpd",
		},
		VideoPatterns: []string{
			"/video/", "/stream/", "/media/", "/hls/", "/dash/",
			"videoplayback", ".m3u8", "/segment",
		},
		VideoIndicators: []string{
			"video/", "application/vnd.apple.mpegurl", "application/x-mpegurl",
			"audio/mpegurl", "audio/x-mpegurl", "application/dash+xml",
		},
		VideoGlobs: []string{
			"*/hls/*", "*/dash/*", "*chunklist*", "*playlist.m3u8",
		},
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("config: PORT must be positive, got %d", c.Server.Port)
	}
	if c.Timeouts.Connect <= 0 || c.Timeouts.Read <= 0 || c.Timeouts.Write <= 0 || c.Timeouts.Pool <= 0 {
		return fmt.Errorf("config: TIMEOUT_* values must be positive")
	}
	if c.Limits.StreamChunkSize <= 0 {
		return fmt.Errorf("config: STREAM_CHUNK_SIZE must be positive")
	}
	if c.Limits.MaxRangeSize <= 0 {
		return fmt.Errorf("config: MAX_RANGE_SIZE must be positive")
	}
	if c.Limits.MaxRequestSize <= 0 {
		return fmt.Errorf("config: MAX_REQUEST_SIZE must be positive")
	}
	if c.Limits.MaxRedirects < 0 {
		return fmt.Errorf("config: MAX_REDIRECTS must not be negative")
	}
	return nil
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	reloadMu   sync.Mutex
	lastReload time.Time
)

// Watch wires fsnotify (via viper.WatchConfig) so that edits to an
// on-disk config file trigger onChange with a freshly loaded Config.
// onChange receives the whole reloaded Config and decides what to apply;
// in-flight requests keep using the Config snapshot they were
// constructed with.
func Watch(v *viper.Viper, onChange func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		reloadMu.Lock()
		defer reloadMu.Unlock()

		now := time.Now()
		if now.Sub(lastReload) < reloadDebounce {
			return
		}
		lastReload = now

		time.Sleep(fileWriteSettleDelay)

		cfg, err := Load(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}
