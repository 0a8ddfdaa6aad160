// Wallet transfer service: accounts, scored transfers and admin risk rollups.
package main

import (
	"context"
	"os"

	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/config"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/logging"
	"github.com/JaiSehgal007/FutureForce-Hackathon/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	bootLogger := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting wallet service",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
		"postgres", cfg.DatabaseURL != "",
		"oracle", cfg.OracleURL != "",
		"nats", cfg.NATSURL != "",
	)

	server.Version = Version
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
