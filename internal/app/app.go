// Package app wires every component into an http.Server and owns its
// lifecycle - construction from config, startup, graceful shutdown and
// config hot-reload, mirroring the teacher's Application/Start/Stop
// shape but against this proxy's own component set.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/streamrelay/proxy/internal/config"
	"github.com/streamrelay/proxy/internal/dispatcher"
	"github.com/streamrelay/proxy/internal/handler"
	"github.com/streamrelay/proxy/internal/httpclient"
	"github.com/streamrelay/proxy/internal/logger"
	"github.com/streamrelay/proxy/internal/manifest"
	"github.com/streamrelay/proxy/internal/middleware"
	"github.com/streamrelay/proxy/internal/pathcodec"
	"github.com/streamrelay/proxy/internal/prober"
	"github.com/streamrelay/proxy/internal/proxypool"
	"github.com/streamrelay/proxy/internal/requestproc"
	"github.com/streamrelay/proxy/internal/streamer"
)

// Application owns the live Config, the proxy pool (whose validated
// entries churn over the process lifetime), and the http.Server built
// from them.
type Application struct {
	cfg    *config.Config
	pool   *proxypool.Pool
	server *http.Server
	log    *logger.StyledLogger
	errCh  chan error
}

// New constructs every component from cfg and mounts the routes. log
// must already be wrapped with logger.NewStyled.
func New(cfg *config.Config, log *logger.StyledLogger) *Application {
	factory := httpclient.New(cfg.Timeouts, cfg.UserAgent)
	pool := proxypool.New(cfg.Proxy.UseProxy, cfg.Proxy.TestURL, livenessProber(factory), cfg.Proxy.MaxRetries)

	decoder := pathcodec.New()
	contentProber := prober.New(factory, pool, cfg.Prober.UseHead, cfg.Timeouts.Read)
	rangeStreamer := streamer.New(factory, pool, cfg.Limits, cfg.Timeouts.Read, log)
	processor := requestproc.New(factory, pool, cfg.Limits.MaxRedirects, cfg.UserAgent, cfg.Timeouts.Read)
	rewriter := manifest.New(processor, cfg.Self)
	disp := dispatcher.New(contentProber, rangeStreamer, rewriter, processor, cfg.Classifier, log)
	h := handler.New(decoder, disp, log)

	limiter := middleware.NewRequestSizeLimiter(cfg.Limits.MaxRequestSize, cfg.Limits.MaxRequestSize, log.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/info", infoHandler)
	mux.HandleFunc("/_admin/poolstats", poolStatsHandler(pool))
	mux.Handle("/", h)

	chain := middleware.RoutePrefix(cfg.Server.RoutePrefix)(
		middleware.Logging(log.Logger, cfg.Server.TrustProxyHeaders, cfg.Server.TrustedProxyCIDRs)(limiter.Middleware(mux)))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{cfg: cfg, pool: pool, server: server, log: log, errCh: make(chan error, 1)}
}

// Start validates the configured proxy list (if any) and begins
// serving. It returns once the listener goroutine is launched; fatal
// startup errors arrive on errCh and are logged by the watcher
// goroutine rather than blocking Start.
func (a *Application) Start(ctx context.Context) error {
	if a.cfg.Proxy.UseProxy && len(a.cfg.Proxy.ProxyList) > 0 {
		live := a.pool.Validate(ctx, a.cfg.Proxy.ProxyList, a.cfg.Proxy.TestTimeout)
		for _, endpoint := range live {
			a.pool.Add(endpoint)
		}
		a.log.Info("proxy pool validated", "configured", len(a.cfg.Proxy.ProxyList), "live", len(live))
	}

	a.log.Info("starting server", "addr", a.server.Addr)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.errCh <- err
		}
	}()

	go func() {
		select {
		case err := <-a.errCh:
			a.log.Error("server error", "error", err)
		case <-ctx.Done():
		}
	}()

	return nil
}

// Stop shuts the server down within the configured timeout.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// WatchConfig wires config.Watch so an edit on disk replaces a.cfg and,
// when proxies are in use, re-validates the proxy list and adds newly
// live endpoints to the pool without restarting the server. Endpoints
// already in the pool are kept, and the components built in New keep
// the settings they were constructed with.
func (a *Application) WatchConfig(v *viper.Viper) {
	config.Watch(v, func(cfg *config.Config) {
		a.cfg = cfg
		if !cfg.Proxy.UseProxy {
			return
		}
		live := a.pool.Validate(context.Background(), cfg.Proxy.ProxyList, cfg.Proxy.TestTimeout)
		for _, endpoint := range live {
			a.pool.Add(endpoint)
		}
		a.log.Info("proxy pool reloaded", "live", len(live))
	})
}

// livenessProber builds a proxypool.Prober that issues a real GET
// through the candidate proxy against testURL, treating any 2xx/3xx
// response as liveness.
func livenessProber(factory *httpclient.Factory) proxypool.Prober {
	return func(ctx context.Context, proxyEndpoint, testURL string, timeout time.Duration) bool {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		client, release := factory.Acquire(httpclient.Options{Proxy: proxyEndpoint, VerifyTLS: true, FollowRedirect: true})
		defer release()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, testURL, nil)
		if err != nil {
			return false
		}

		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode < 400
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"healthy"}`)
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"name":"streamrelay"}`)
}

// poolStatsHandler backs cmd/poolview's dashboard: a JSON snapshot of
// the proxy pool's per-endpoint success/failure counts.
func poolStatsHandler(pool *proxypool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := pool.StatsSnapshot()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(snapshot)
	}
}
