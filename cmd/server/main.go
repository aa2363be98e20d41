// Package main is the entry point for the Game Saviour API server.
//
// The main package stays small. It reads configuration, builds the logger,
// makes sure the database directory exists, and hands everything to
// internal/server, which owns the rest of the wiring.
//
// Configuration is resolved in this order (see internal/config):
//
//	--config flag → CONFIG_PATH → ./local.yaml → environment only
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bullaburg/game-saviour/internal/config"
	"github.com/bullaburg/game-saviour/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logger := cfg.Log.NewLogger(os.Stdout)

	// ":memory:" has no directory to create.
	if cfg.DB.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.DB.Path)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	if !cfg.Auth.GoogleEnabled() {
		logger.Warn("GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set, Google sign-in is disabled")
	}

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
