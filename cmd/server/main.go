// Package main is the entry point for the Open Source Hub API server.
//
// MAIN PACKAGE:
// main stays minimal. Its job is to:
// 1. Read configuration (environment variables, see internal/config)
// 2. Create the logger
// 3. Start the application
//
// All actual logic lives in internal/server and the packages it wires.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/opensource-hub/internal/config"
	"github.com/sakif/opensource-hub/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Required: JWT_SECRET, GITHUB_CLIENT_ID, GITHUB_CLIENT_SECRET and
	// GITHUB_ACCESS_TOKEN_ENCRYPT_KEY (32 random bytes, base64):
	//   GITHUB_ACCESS_TOKEN_ENCRYPT_KEY=$(openssl rand -base64 32)
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; the default one writes to stderr.
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Text for humans in development, JSON for log collectors in production.
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var logger *slog.Logger
	if cfg.IsProduction() {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	// os.MkdirAll is `mkdir -p`: a no-op when the directory exists.
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
