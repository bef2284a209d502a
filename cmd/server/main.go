// Walletscreen - wallet risk screening with per-identity usage quotas
package main

import (
	"context"
	"os"

	"github.com/walletscreen/walletscreen/internal/config"
	"github.com/walletscreen/walletscreen/internal/logging"
	"github.com/walletscreen/walletscreen/internal/server"
	"github.com/walletscreen/walletscreen/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting walletscreen",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"elliptic_url", cfg.EllipticURL,
	)

	ctx := context.Background()

	// Distributed tracing (no-op when no endpoint configured)
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTraces(context.Background()) }()

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
