// Command responder starts the demo greeting backend the gateway proxies to.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rategate/internal/observability/logging"
	"rategate/internal/responder"
	"rategate/internal/serverutil"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("RATEGATE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("RATEGATE_LOG_FORMAT")),
	})

	listenAddr := firstNonEmpty(*addr, os.Getenv("RATEGATE_RESPONDER_ADDR"), responder.DefaultAddr)
	serverID := responder.ServerIDFromEnv()

	srv := responder.NewServer(responder.Config{
		Addr:     listenAddr,
		ServerID: serverID,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("responder starting", "addr", listenAddr, "server_id", serverID)
	if err := serverutil.Run(ctx, serverutil.Config{
		Name:   "responder",
		Server: srv,
		Logger: logger,
	}); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
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
