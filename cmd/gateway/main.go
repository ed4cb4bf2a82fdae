// Command gateway starts the rate-limiting reverse proxy.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rategate/internal/config"
	"rategate/internal/gateway"
	"rategate/internal/observability/logging"
	"rategate/internal/observability/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to the settings file")
	proxyAddr := flag.String("addr", "", "proxy listen address")
	adminAddr := flag.String("admin-addr", "", "admin listen address for health and metrics")
	targetURL := flag.String("target-url", "", "upstream base URL")
	redisAddr := flag.String("redis-addr", "", "Redis address for the shared counter store")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("RATEGATE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("RATEGATE_LOG_FORMAT")),
	})

	path := firstNonEmpty(*configPath, os.Getenv("RATEGATE_CONFIG"), config.DefaultPath)
	settings, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load settings", "path", path, "error", err)
		os.Exit(1)
	}

	applyOverrides(settings, overrides{
		proxyAddr: firstNonEmpty(*proxyAddr, os.Getenv("RATEGATE_PROXY_ADDR")),
		adminAddr: firstNonEmpty(*adminAddr, os.Getenv("RATEGATE_ADMIN_ADDR")),
		targetURL: firstNonEmpty(*targetURL, os.Getenv("RATEGATE_TARGET_URL")),
		redisAddr: firstNonEmpty(*redisAddr, os.Getenv("RATEGATE_REDIS_ADDR")),
	})
	if err := settings.Validate(); err != nil {
		logger.Error("invalid settings", "path", path, "error", err)
		os.Exit(1)
	}

	srv, err := gateway.New(gateway.Config{
		Settings: settings,
		Logger:   logger,
		Metrics:  metrics.Default(),
	})
	if err != nil {
		logger.Error("failed to initialise gateway", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("gateway starting",
		"proxy_addr", settings.APIGateway.ProxyServerAddr,
		"admin_addr", settings.APIGateway.AdminAddr,
		"target", settings.APIGateway.TargetURL,
		"limiters", len(settings.RateLimiters),
	)
	if err := srv.Run(ctx); err != nil {
		logger.Error("gateway error", "error", err)
		os.Exit(1)
	}
}

type overrides struct {
	proxyAddr string
	adminAddr string
	targetURL string
	redisAddr string
}

func applyOverrides(settings *config.Settings, o overrides) {
	if o.proxyAddr != "" {
		settings.APIGateway.ProxyServerAddr = o.proxyAddr
	}
	if o.adminAddr != "" {
		settings.APIGateway.AdminAddr = o.adminAddr
	}
	if o.targetURL != "" {
		settings.APIGateway.TargetURL = o.targetURL
	}
	if o.redisAddr != "" {
		settings.Redis.Addr = o.redisAddr
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
