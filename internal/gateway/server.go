// Package gateway implements the rate-limiting reverse proxy: every request
// is checked against the configured limiters and, when admitted, forwarded
// verbatim to the single upstream target.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"rategate/internal/config"
	"rategate/internal/observability/logging"
	"rategate/internal/observability/metrics"
	"rategate/internal/serverutil"
)

// Config assembles a gateway Server.
type Config struct {
	Settings *config.Settings
	Logger   *slog.Logger
	Metrics  *metrics.Recorder

	// Store overrides the counter store derived from Settings. Used by tests.
	Store CounterStore
}

// Server runs the proxy listener and, when configured, an admin listener with
// health and metrics endpoints. The admin surface is never mounted on the
// proxy listener so every proxied path reaches the upstream untouched.
type Server struct {
	proxy       *http.Server
	admin       *http.Server
	limiter     *Limiter
	logger      *slog.Logger
	storeCloser io.Closer
}

// New validates the settings, builds the limiter over the configured counter
// store, and wires the middleware chain around the reverse proxy.
func New(cfg Config) (*Server, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	target, err := cfg.Settings.Target()
	if err != nil {
		return nil, err
	}

	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	store := cfg.Store
	var storeCloser io.Closer
	if store == nil {
		if cfg.Settings.Redis.Enabled() {
			redisStore, err := NewRedisStore(cfg.Settings.Redis)
			if err != nil {
				return nil, fmt.Errorf("open counter store: %w", err)
			}
			store = redisStore
			storeCloser = redisStore
		} else {
			store = NewMemoryStore()
		}
	}

	limiter := NewLimiter(
		cfg.Settings.RateLimiters,
		store,
		logging.WithComponent(cfg.Logger, "limiter"),
		recorder,
	)

	chain := newProxyHandler(target, cfg.Logger, recorder)
	chain = rateLimitMiddleware(limiter, chain)
	chain = metrics.HTTPMiddleware(recorder, chain)
	chain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: cfg.Logger})(chain)
	chain = requestIDMiddleware(cfg.Logger, chain)

	proxyServer := &http.Server{
		Addr:              cfg.Settings.APIGateway.ProxyServerAddr,
		Handler:           chain,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv := &Server{
		proxy:       proxyServer,
		limiter:     limiter,
		logger:      cfg.Logger,
		storeCloser: storeCloser,
	}

	if adminAddr := cfg.Settings.APIGateway.AdminAddr; adminAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", srv.handleHealth)
		mux.Handle("/metrics", recorder.Handler())
		srv.admin = &http.Server{
			Addr:              adminAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}

	return srv, nil
}

// Handler exposes the proxy middleware chain. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.proxy.Handler
}

// Run serves the proxy and admin listeners until the context is cancelled or
// either listener fails; a failure on one shuts the other down.
func (s *Server) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return serverutil.Run(groupCtx, serverutil.Config{
			Name:   "proxy",
			Server: s.proxy,
			Logger: s.logger,
		})
	})
	if s.admin != nil {
		group.Go(func() error {
			return serverutil.Run(groupCtx, serverutil.Config{
				Name:   "admin",
				Server: s.admin,
				Logger: s.logger,
			})
		})
	}
	err := group.Wait()
	if s.storeCloser != nil {
		if closeErr := s.storeCloser.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	overall := "ok"
	statusCode := http.StatusOK
	component := componentStatus{Component: "counter_store", Status: "ok"}
	if err := s.limiter.Ping(r.Context()); err != nil {
		component.Status = "degraded"
		component.Error = err.Error()
		overall = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":     overall,
		"components": []componentStatus{component},
	})
}

func newProxyHandler(target *url.URL, logger *slog.Logger, recorder *metrics.Recorder) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		recorder.ObserveProxyError()
		if logger != nil {
			logging.WithContext(r.Context(), logger).Error("proxy error", "error", err, "path", r.URL.Path)
		}
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return proxy
}

func rateLimitMiddleware(limiter *Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := limiter.Check(r.Context(), r)
		if !decision.Allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", decision.RetryAfter.Seconds()))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", "0")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		if decision.Applied {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		}
		next.ServeHTTP(w, r)
	})
}
